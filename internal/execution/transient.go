package execution

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"net"
	"syscall"

	"github.com/lib/pq"
)

// transientCodes are SQLSTATE codes outside the connection-exception and
// insufficient-resources classes that are still worth retrying.
var transientCodes = map[pq.ErrorCode]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"55P03": true, // lock_not_available
	"57P01": true, // admin_shutdown
	"57P02": true, // crash_shutdown
	"57P03": true, // cannot_connect_now
}

// transientClasses are SQLSTATE classes retried as a whole.
var transientClasses = map[pq.ErrorClass]bool{
	"08": true, // connection_exception
	"53": true, // insufficient_resources
}

// IsTransient reports whether err is a storage failure that may succeed if
// the whole operation is attempted again.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return transientCodes[pqErr.Code] || transientClasses[pqErr.Code.Class()]
	}

	if connectionLost(err) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

// IsConnectionLost reports whether err means the connection it came from can
// no longer be used, so a retry must run on a fresh one.
func IsConnectionLost(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code.Class() == "08" || pqErr.Code == "57P01" || pqErr.Code == "57P02"
	}
	if connectionLost(err) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func connectionLost(err error) bool {
	return errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE)
}
