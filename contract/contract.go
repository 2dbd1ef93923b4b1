//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"

	"chat-core/domain/event"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself; supervision handles panics and restarts.
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker
// lifecycle events, avoiding manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink is one live connection's inbox. Consume must not block
// indefinitely; a sink that cannot keep up is dropped by its owner.
type EventSink interface {
	Consume(ctx context.Context, e event.Event) error
}

// IRegistry is the process-local presence map: participant id to the set
// of live connections bound to it.
type IRegistry interface {
	Bind(participantID string, sink EventSink)
	Unbind(sink EventSink) (participantID string, last bool)
	SinksFor(participantID string) []EventSink
	IsOnline(participantID string) bool
	OnlineIDs() []string
	Publish(ctx context.Context, e event.Event)
}
