package nats

import "strings"

// subject maps a slash separated topic name onto a dot separated NATS
// subject: "/robot1/scan" becomes "robot1.scan".
func subject(topic string) string {
	return strings.ReplaceAll(strings.Trim(topic, "/"), "/", ".")
}
