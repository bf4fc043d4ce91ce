// Package xid issues prefixed opaque identifiers for entities that are
// not numbered by the ledgers, such as audit log rows.
package xid

import (
	"fmt"

	"github.com/google/uuid"
)

func New(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, uuid.NewString())
}
