package control

// Command is the typed form of the control API's action parameter. Every
// variant is handled exhaustively by the handler's dispatch switch.
type Command int

const (
	// CmdHome is the default for "home" and any unrecognized action.
	CmdHome Command = iota
	CmdStatus
	CmdPairingCode
	CmdSend
	CmdTestMsg
	CmdForceReset
)

// ParseCommand maps the action query parameter to a command.
func ParseCommand(action string) Command {
	switch action {
	case "status":
		return CmdStatus
	case "get_pairing_code":
		return CmdPairingCode
	case "send":
		return CmdSend
	case "test_msg":
		return CmdTestMsg
	case "force_reset":
		return CmdForceReset
	default:
		return CmdHome
	}
}

// String returns the wire name of the command.
func (c Command) String() string {
	switch c {
	case CmdStatus:
		return "status"
	case CmdPairingCode:
		return "get_pairing_code"
	case CmdSend:
		return "send"
	case CmdTestMsg:
		return "test_msg"
	case CmdForceReset:
		return "force_reset"
	default:
		return "home"
	}
}
