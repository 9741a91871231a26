package pages

import "fmt"

// Kind names the logical page or state an action ended on.
type Kind int

const (
	RPSignedIn Kind = iota + 1
	RPSignedOut
	AccountManagerHome
	PersonaHome
	DialogClosed
	CheckEmail
	ComputerPrompt
)

func (k Kind) String() string {
	switch k {
	case RPSignedIn:
		return "rp-signed-in"
	case RPSignedOut:
		return "rp-signed-out"
	case AccountManagerHome:
		return "account-manager"
	case PersonaHome:
		return "persona-home"
	case DialogClosed:
		return "dialog-closed"
	case CheckEmail:
		return "check-email"
	case ComputerPrompt:
		return "computer-prompt"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Landing is what an action returns instead of the next page object. The
// caller builds whichever page object Kind calls for, on Window.
type Landing struct {
	Kind   Kind
	Window string
}

func (l Landing) String() string {
	return l.Kind.String() + "@" + l.Window
}
