package protocol

// Kind classifies an observed or queued frame for duplicate suppression and
// queue accounting. It is part of the seen-set key so a router that forwarded
// a frame can still deliver it when it is also the destination, and so a
// confirmed frame never aliases its own acknowledgement.
type Kind uint8

const (
	KindUnconfirmed Kind = iota
	KindConfirmed
	KindForwarded
	KindAcknowledgement
)

func (k Kind) String() string {
	switch k {
	case KindUnconfirmed:
		return "unconfirmed"
	case KindConfirmed:
		return "confirmed"
	case KindForwarded:
		return "forwarded"
	case KindAcknowledgement:
		return "ack"
	default:
		return "unknown"
	}
}

// KindForType maps a wire type to the seen-set kind used when the frame is
// handled locally.
func KindForType(t uint8) Kind {
	switch t {
	case TypeUnconfirmed:
		return KindUnconfirmed
	case TypeConfirmed:
		return KindConfirmed
	case TypeAck:
		return KindAcknowledgement
	default:
		return KindForwarded
	}
}

// SendStatus is the outcome reported for a send, both at the link layer and
// end-to-end for confirmed messages.
type SendStatus uint8

const (
	// SendSuccess means the peer acknowledged the frame.
	SendSuccess SendStatus = iota
	// SendBroadcast means the frame went to the broadcast address; the
	// driver's delivery report only says it entered the air.
	SendBroadcast
	// SendFail means link-layer retries were exhausted or no ack arrived
	// in time.
	SendFail
)

func (s SendStatus) String() string {
	switch s {
	case SendSuccess:
		return "success"
	case SendBroadcast:
		return "broadcast"
	case SendFail:
		return "fail"
	default:
		return "unknown"
	}
}
