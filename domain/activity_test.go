package domain

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestActivityLog_Keeps_Only_The_Last_Five_Entries(t *testing.T) {
	req := require.New(t)
	var log ActivityLog

	// When seven mutations are recorded
	for i := 0; i < 7; i++ {
		log.Append("blocked", fmt.Sprintf("user-%d", i), time.Now().UTC())
	}

	// Then only the five most recent remain, oldest evicted first
	req.Len(log.Entries, 5)
	req.Equal("user-2", log.Entries[0].Other)
	req.Equal("user-6", log.Entries[4].Other)
}
