package app

import "fmt"

// Devices required by the hip app.
const (
	RequiredSensors  = 2
	RequiredFeedback = 2
)

// CheckStatus reports whether enough devices are connected to run the hip
// app, with a message for the operator. Both shortages are reported when
// both apply.
func CheckStatus(sensorsConnected, feedbackConnected int, feedbackEnabled bool) (bool, string) {
	msg := ""
	if sensorsConnected < RequiredSensors {
		msg += fmt.Sprintf("App requires %d sensors but only %d are connected", RequiredSensors, sensorsConnected)
	}
	if feedbackEnabled && feedbackConnected < RequiredFeedback {
		msg += fmt.Sprintf("App require %d feedback but only %d are connected", RequiredFeedback, feedbackConnected)
	}
	if msg != "" {
		return false, msg
	}
	return true, "Now running Hip Extension App"
}
