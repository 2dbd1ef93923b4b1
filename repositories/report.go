//go:generate go run go.uber.org/mock/mockgen -source=report.go -destination=../mocks/mock_report_repository.go -package=mocks
package repositories

import (
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"chat-core/domain"
)

type IReportRepository interface {
	Store(report domain.Report) error
}

type ReportRepository struct {
	db *badger.DB
}

func NewReportRepository(db *badger.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

func (r *ReportRepository) Store(report domain.Report) error {
	data, err := marshalRecord(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(reportKey(report.ID, report.At), data)
	})
}
