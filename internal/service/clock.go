package service

import "time"

// Clock supplies the current time.
type Clock func() time.Time

func utcNow() time.Time { return time.Now().UTC() }
