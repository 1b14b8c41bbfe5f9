// Package navigator is the screen transition table of the app. It is a
// pure function of the current screen, the event and the signed-in role.
package navigator

import "github.com/wecanfarm/wecanfarm/internal/session"

// Screen identifies one screen of the app.
type Screen string

const (
	Onboarding1     Screen = "onboarding1"
	Onboarding2     Screen = "onboarding2"
	Login           Screen = "login"
	Signup          Screen = "signup"
	PlantCheck      Screen = "plant_check"
	FarmerDashboard Screen = "farmer_dashboard"
	Market          Screen = "market"
	ProductRegister Screen = "product_register"
)

// Start is the first screen shown.
const Start = Onboarding1

// Screens lists every screen.
var Screens = []Screen{
	Onboarding1, Onboarding2, Login, Signup,
	PlantCheck, FarmerDashboard, Market, ProductRegister,
}

// Event is a user action that may move between screens.
type Event string

const (
	EventNext              Event = "next"
	EventBack              Event = "back"
	EventLoginSuccess      Event = "login_success"
	EventSignup            Event = "signup"
	EventSignupSuccess     Event = "signup_success"
	EventDiagnose          Event = "diagnose"
	EventOpenMarket        Event = "open_market"
	EventRegisterProduct   Event = "register_product"
	EventProductRegistered Event = "product_registered"
	EventNavHome           Event = "nav_home"
	EventNavDiagnose       Event = "nav_diagnose"
	EventNavMarket         Event = "nav_market"
	EventLogout            Event = "logout"
)

type key struct {
	from  Screen
	event Event
}

var fixed = map[key]Screen{
	{Onboarding1, EventNext}:                  Onboarding2,
	{Onboarding2, EventBack}:                  Onboarding1,
	{Onboarding2, EventNext}:                  Login,
	{Login, EventSignup}:                      Signup,
	{Signup, EventSignupSuccess}:              Login,
	{Signup, EventBack}:                       Login,
	{FarmerDashboard, EventDiagnose}:          PlantCheck,
	{FarmerDashboard, EventOpenMarket}:        Market,
	{Market, EventRegisterProduct}:            ProductRegister,
	{Market, EventNavDiagnose}:                PlantCheck,
	{Market, EventNavMarket}:                  Market,
	{ProductRegister, EventBack}:              Market,
	{ProductRegister, EventProductRegistered}: Market,
}

// home is where a signed-in user lands.
func home(role session.Role) Screen {
	if role == session.RoleFarmer {
		return FarmerDashboard
	}
	return Market
}

// Next returns the screen that follows event on current. Pairs with no
// transition return current and false.
func Next(current Screen, event Event, role session.Role) (Screen, bool) {
	switch {
	case current == Login && event == EventLoginSuccess:
		return home(role), true
	case current == PlantCheck && event == EventBack:
		return home(role), true
	case current == Market && event == EventNavHome:
		return home(role), true
	case current == Market && event == EventBack:
		if role == session.RoleFarmer {
			return FarmerDashboard, true
		}
		return Login, true
	case event == EventLogout && Authenticated(current):
		return Login, true
	}
	if next, ok := fixed[key{current, event}]; ok {
		return next, true
	}
	return current, false
}

// Authenticated reports whether screen requires a signed-in user.
func Authenticated(screen Screen) bool {
	switch screen {
	case PlantCheck, FarmerDashboard, Market, ProductRegister:
		return true
	}
	return false
}

// Events returns the events that move away from current for role, in a
// stable order.
func Events(current Screen, role session.Role) []Event {
	all := []Event{
		EventNext, EventBack, EventLoginSuccess, EventSignup, EventSignupSuccess,
		EventDiagnose, EventOpenMarket, EventRegisterProduct, EventProductRegistered,
		EventNavHome, EventNavDiagnose, EventNavMarket, EventLogout,
	}
	var out []Event
	for _, e := range all {
		if next, ok := Next(current, e, role); ok && next != current {
			out = append(out, e)
		}
	}
	return out
}
