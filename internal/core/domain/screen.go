package domain

// ScreenStep tags the currently visible step of a withdrawal session.
type ScreenStep string

const (
	ScreenIdle              ScreenStep = "IDLE"
	ScreenFetchingQuotation ScreenStep = "FETCHING_QUOTATION"
	ScreenShowQuotation     ScreenStep = "SHOW_QUOTATION"
	ScreenShowSignDialog    ScreenStep = "SHOW_SIGN_DIALOG"
	ScreenSigningInProgress ScreenStep = "SIGNING_IN_PROGRESS"
	ScreenShowSuccess       ScreenStep = "SHOW_SUCCESS"
	ScreenShowError         ScreenStep = "SHOW_ERROR"
)

// ScreenContent is the visible step plus the data that step carries.
// Message is used by SHOW_SUCCESS and SHOW_ERROR; Critical only by SHOW_ERROR.
type ScreenContent struct {
	Step     ScreenStep `json:"step"`
	Message  string     `json:"message,omitempty"`
	Critical bool       `json:"critical,omitempty"`
}

func IdleScreen() ScreenContent { return ScreenContent{Step: ScreenIdle} }

func FetchingQuotationScreen() ScreenContent {
	return ScreenContent{Step: ScreenFetchingQuotation}
}

func ShowQuotationScreen() ScreenContent { return ScreenContent{Step: ScreenShowQuotation} }

func ShowSignDialogScreen() ScreenContent { return ScreenContent{Step: ScreenShowSignDialog} }

func SigningInProgressScreen() ScreenContent {
	return ScreenContent{Step: ScreenSigningInProgress}
}

func ShowSuccessScreen(msg string) ScreenContent {
	return ScreenContent{Step: ScreenShowSuccess, Message: msg}
}

func ShowErrorScreen(msg string, critical bool) ScreenContent {
	return ScreenContent{Step: ScreenShowError, Message: msg, Critical: critical}
}

// ScreenForSigning maps an orchestrator state to the step it makes visible.
// Idle has no visible step of its own.
func ScreenForSigning(s SigningState) (ScreenContent, bool) {
	switch s.Status {
	case SigningInProgress:
		return SigningInProgressScreen(), true
	case SigningSuccess:
		return ShowSuccessScreen(s.Message), true
	case SigningError:
		return ShowErrorScreen(s.Message, false), true
	}
	return ScreenContent{}, false
}
