package auth

// Page names posted with the Google sign-in form.
const (
	PageLogin  = "login"
	PageSignup = "signup"
)

// LoginPageData encapsulates rendering state for the login and signup screens.
type LoginPageData struct {
	Page          string
	Email         string
	Error         string
	From          string
	CSRFToken     string
	GoogleEnabled bool
}

type pageText struct {
	title    string
	heading  string
	action   string
	submit   string
	altLead  string
	altHref  string
	altLabel string
	altTail  string
	google   string
}

var texts = map[string]pageText{
	PageLogin: {
		title:    "Login",
		heading:  "Please Login to Dashboard",
		action:   "/login",
		submit:   "Login",
		altLead:  "If you haven't an account. Please create here ",
		altHref:  "/create-user",
		altLabel: "Sign Up",
		google:   "Log in with Google",
	},
	PageSignup: {
		title:    "Sign Up",
		heading:  "Please Create An Account",
		action:   "/create-user",
		submit:   "Sign up",
		altLead:  "If you have an account. Please ",
		altHref:  "/login",
		altLabel: "Login",
		altTail:  " here",
		google:   "Log in with Google",
	},
}

func textFor(page string) pageText {
	if t, ok := texts[page]; ok {
		return t
	}
	return texts[PageLogin]
}

// Title returns the document title for the page.
func (d LoginPageData) Title() string {
	return textFor(d.Page).title
}
