package user

import "strings"

const subscriptionSeparator = "-subscribed-to-"

// Rotate moves the head card to the tail. An empty queue rotates to itself.
// The input slice is left untouched.
func (c Cards) Rotate() Cards {
	if len(c) == 0 {
		return Cards{}
	}
	rotated := make(Cards, 0, len(c))
	rotated = append(rotated, c[1:]...)
	return append(rotated, c[0])
}

// ParseSubscription splits a "<username>-subscribed-to-<url>" path segment.
// The split happens at the last separator, so usernames may contain it.
func ParseSubscription(segment string) (subscriber, targetURL string, ok bool) {
	i := strings.LastIndex(segment, subscriptionSeparator)
	if i <= 0 {
		return "", "", false
	}
	subscriber = segment[:i]
	targetURL = segment[i+len(subscriptionSeparator):]
	if targetURL == "" {
		return "", "", false
	}
	return subscriber, targetURL, true
}
