package ebicsmsg

// Standard BTDescriptors for the document kinds the fetch orchestrator
// polls (§4.8). HAC carries no container: the bank returns the bare
// pain.002 log document directly, the "legacy HAC read" path that is
// nexus's only concession to EBICS 2.x order types inside an otherwise
// EBICS 3 conversation.
var (
	BTNotification = BTDescriptor{
		Service:        "BTD",
		Scope:          "CH",
		Container:      "ZIP",
		MessageName:    "camt.054",
		MessageVersion: "08",
	}
	BTPaymentStatus = BTDescriptor{
		Service:        "BTD",
		Scope:          "CH",
		Container:      "ZIP",
		MessageName:    "pain.002",
		MessageVersion: "10",
	}
	BTAcknowledgement = BTDescriptor{
		Service:        "BTD",
		Scope:          "CH",
		MessageName:    "pain.002",
		MessageVersion: "10",
		Option:         "HAC",
	}
	BTReport = BTDescriptor{
		Service:        "BTD",
		Scope:          "CH",
		Container:      "ZIP",
		MessageName:    "camt.052",
		MessageVersion: "08",
	}
	BTStatement = BTDescriptor{
		Service:        "BTD",
		Scope:          "CH",
		Container:      "ZIP",
		MessageName:    "camt.053",
		MessageVersion: "08",
	}
	BTUpload = BTDescriptor{
		Service:        "PMT",
		Scope:          "CH",
		MessageName:    "pain.001",
		MessageVersion: "09",
	}
)
