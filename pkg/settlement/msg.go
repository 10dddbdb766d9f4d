package settlement

const (
	MsgExecuteTypeURL = "/initia.move.v1.MsgExecute"

	inboxModuleAddress = "0x1"
	inboxModuleName    = "op_batch_inbox"
	recordBatchFunc    = "record_batch"
)

// MsgExecute calls an entry function of a Move module.
type MsgExecute struct {
	Sender        string
	ModuleAddress string
	ModuleName    string
	FunctionName  string
	TypeArgs      []string
	Args          [][]byte
}

// NewRecordBatchMsg builds the 0x1::op_batch_inbox::record_batch call that
// records payload for ledgerID. arg must already be BCS encoded.
func NewRecordBatchMsg(sender, ledgerID string, arg []byte) MsgExecute {
	return MsgExecute{
		Sender:        sender,
		ModuleAddress: inboxModuleAddress,
		ModuleName:    inboxModuleName,
		FunctionName:  recordBatchFunc,
		TypeArgs:      []string{ledgerID},
		Args:          [][]byte{arg},
	}
}

// Marshal returns the protobuf encoding of the message.
func (m MsgExecute) Marshal() []byte {
	var b []byte
	b = appendString(b, 1, m.Sender)
	b = appendString(b, 2, m.ModuleAddress)
	b = appendString(b, 3, m.ModuleName)
	b = appendString(b, 4, m.FunctionName)
	for _, ta := range m.TypeArgs {
		b = appendMessage(b, 5, []byte(ta))
	}
	for _, arg := range m.Args {
		b = appendMessage(b, 6, arg)
	}
	return b
}
