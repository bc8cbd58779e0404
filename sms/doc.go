// Package sms delivers login codes. SMSLocalClient talks to a real gateway,
// LogSender prints codes for local development and Recorder captures them in tests.
package sms
