package migration

import (
	"testing"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// pools closed in t.Cleanup can leave the opener parked briefly
		goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"),
	)
}
