package feedmanager

import (
	"errors"
	"fmt"
)

// ErrDestroyed is returned by every operation on a Registry after Destroy.
var ErrDestroyed = errors.New("feed registry destroyed")

// ErrPollInProgress is returned by Poll when a tick for the same feed is already running.
var ErrPollInProgress = errors.New("poll already in progress")

// ErrUnknownListener is returned by RemoveListener when the id is not attached to the feed.
var ErrUnknownListener = errors.New("listener not attached to feed")

// FeedParseError reports that a URL could not be fetched or is not a valid RSS 2.0 feed.
type FeedParseError struct {
	URL string
	Err error
}

func (e *FeedParseError) Error() string {
	return fmt.Sprintf("%s is not a valid RSS 2.0 feed: %v", e.URL, e.Err)
}

func (e *FeedParseError) Unwrap() error {
	return e.Err
}

// FeedUnknownError reports an operation on a URL that is not registered.
type FeedUnknownError struct {
	URL string
}

func (e *FeedUnknownError) Error() string {
	return fmt.Sprintf("feed %s is not registered", e.URL)
}

// DuplicateFeedError reports an attempt to register a URL twice.
type DuplicateFeedError struct {
	URL string
}

func (e *DuplicateFeedError) Error() string {
	return fmt.Sprintf("feed %s is already registered", e.URL)
}
