// Package fetch implements the fetch/ingest orchestrator (C8, §4.8): for
// each configured document kind it downloads via ebicstransport, unzips,
// parses via iso20022, and reconciles the resulting records against
// nexusdb.Database.
package fetch

import "nexus/internal/ebicsmsg"

// Kind names one EBICS business-transaction document the orchestrator
// polls for. Notification, Status, and Acknowledgement are always
// polled; Report and Statement are optional per §4.8's "plus optional
// reports/statements".
type Kind string

const (
	KindNotification    Kind = "notification"    // camt.054 debit/credit notification
	KindStatus          Kind = "status"           // pain.002 payment-status report
	KindAcknowledgement Kind = "acknowledgement"  // pain.002 HAC journal
	KindReport          Kind = "report"           // camt.052 account report
	KindStatement       Kind = "statement"        // camt.053 account statement
)

// descriptor returns the BTDescriptor used to download documents of kind k.
func (k Kind) descriptor() ebicsmsg.BTDescriptor {
	switch k {
	case KindNotification:
		return ebicsmsg.BTNotification
	case KindStatus:
		return ebicsmsg.BTPaymentStatus
	case KindAcknowledgement:
		return ebicsmsg.BTAcknowledgement
	case KindReport:
		return ebicsmsg.BTReport
	case KindStatement:
		return ebicsmsg.BTStatement
	default:
		panic("fetch: unknown kind " + string(k))
	}
}

// bareDocument reports whether documents of this kind arrive as a single
// XML file rather than a ZIP archive of entries — true only for the
// legacy HAC acknowledgement read (§4.4, §9's non-goal on EBICS 2.x).
func (k Kind) bareDocument() bool {
	return k == KindAcknowledgement
}

// DefaultKinds is the set of kinds polled when configuration does not
// narrow it: the three kinds §4.8 always requires.
func DefaultKinds() []Kind {
	return []Kind{KindNotification, KindStatus, KindAcknowledgement}
}
