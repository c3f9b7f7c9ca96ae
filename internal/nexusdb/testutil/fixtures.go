package testutil

import (
	"fmt"
	"time"
)

// RandomRequestUID generates a unique request UID for test initiated payments.
func RandomRequestUID() string {
	return fmt.Sprintf("test-uid-%d", time.Now().UnixNano())
}

// RandomBankID generates a unique synthetic AcctSvcrRef for test incoming payments.
func RandomBankID() string {
	return fmt.Sprintf("BANKREF%d", time.Now().UnixNano())
}

// RandomMessageID generates a unique synthetic pain.001 MsgId for test outgoing payments.
func RandomMessageID() string {
	return fmt.Sprintf("MSG%d", time.Now().UnixNano())
}
