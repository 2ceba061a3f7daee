package models

type LoginPageData struct {
	Email   string
	Message string
	IsError bool
	Sending bool
}

type LandingPageData struct {
	Email    string
	Redirect string
	Error    string
}
