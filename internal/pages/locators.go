package pages

// Site describes the sign-in widgets of one relying party.
type Site struct {
	Name    string
	Title   string
	SignIn  string
	Logout  string
	Email   string
	Loading string // empty when the site has no spinner
}

var (
	OneTwoThree = Site{
		Name:    "123done",
		Title:   "123done - your tasks, simplified",
		SignIn:  "#loggedout > button",
		Logout:  "#loggedin > a",
		Email:   "#loggedin > span",
		Loading: "li.loading img",
	}
	MyFavoriteBeer = Site{
		Name:   "myfavoritebeer",
		Title:  "My Favorite Beer",
		SignIn: "#loginInfo .login",
		Logout: "a#logout",
		Email:  "span.username",
	}
)

// Sites returns the relying parties in a stable order.
func Sites() []Site { return []Site{OneTwoThree, MyFavoriteBeer} }

// Identity dialog.
const (
	DialogWindowName = "__persona_dialog"

	dialogEmail            = "#email"
	dialogNext             = "button.start"
	dialogPassword         = "#password"
	dialogVerifyPassword   = "#vpassword"
	dialogSignIn           = "button.returning"
	dialogSignInReturning  = "#signInButton"
	dialogVerifyEmail      = "#verify_user"
	dialogForgotPassword   = "#forgotPassword"
	dialogResetPassword    = "#password_reset"
	dialogCheckEmailAt     = "#wait .contents h2 + p strong"
	dialogThisIsNotMe      = "#thisIsNotMe"
	dialogEmailLabels      = "label[for^=email_]"
	dialogEmailRadioPrefix = "#email_"
	dialogAddAnotherEmail  = "#useNewEmail"
	dialogNewEmail         = "#newEmail"
	dialogAddNewEmail      = "#addNewEmail"
	dialogYourComputer     = "#your_computer_content"
	dialogThisIsMyComputer = "#this_is_my_computer"
	dialogNotMyComputer    = "#this_is_not_my_computer"
)

// persona.org site pages.
const (
	personaHeaderSignIn  = "#header a.signIn"
	personaHeaderSignOut = "#header a.signOut"

	signInEmail          = "#email"
	signInNext           = "#next"
	signInPassword       = "#password"
	signInVerifyPassword = "#vpassword"
	signInSubmit         = "#signIn"
	signInVerifyEmail    = "#verifyEmail"
	signInForgotPassword = "a.forgot"
	signInResetPassword  = "#signUpForm button"
	signInCheckYourEmail = ".notification.emailsent > h2"

	managerEmails         = "#emailList .email"
	managerEditPassword   = "#edit_password button.edit"
	managerOldPassword    = "#old_password"
	managerNewPassword    = "#new_password"
	managerPasswordDone   = "#changePassword"
	managerCancelAccount  = "#cancelAccount"
	managerEditEmails     = "#manage button.edit"
	managerRemoveEmail    = "#emailList .delete"
	managerDoneEditEmails = "#manage button.done"

	RegistrationTitle    = "Mozilla Persona: Complete Registration"
	registrationEmail    = "#email"
	registrationPassword = "#password"
	registrationFinish   = "div.submit > button"
	registrationCongrats = "#congrats"
)
