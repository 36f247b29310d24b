package postgres

import (
	"errors"

	"github.com/lib/pq"
)

func pqCode(err error) (pq.ErrorCode, bool) {
	var pgErr *pq.Error
	if err == nil || !errors.As(err, &pgErr) {
		return "", false
	}
	return pgErr.Code, true
}

// IsDeterministicErr reports data exceptions (class 22) and integrity
// violations (class 23). Running the same statement again fails the same way.
func IsDeterministicErr(err error) bool {
	code, ok := pqCode(err)
	if !ok {
		return false
	}
	switch code.Class() {
	case "22", "23":
		return true
	}
	return false
}
