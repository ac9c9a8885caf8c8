package syncengine

import "errors"

var (
	// ErrDependencyNotReady is recorded on a child entry whose parent has no remote id yet.
	ErrDependencyNotReady = errors.New("parent not yet synced")

	// ErrChildrenPending is recorded on a delete whose children are still stored locally.
	ErrChildrenPending = errors.New("children not yet deleted")

	// ErrRetryCeilingExceeded is attached to an evicted entry.
	ErrRetryCeilingExceeded = errors.New("retry ceiling exceeded")

	// ErrMissingRemoteID is recorded on an update for an entity the remote service never acknowledged.
	ErrMissingRemoteID = errors.New("entity has no remote id")

	// ErrDrainInProgress is returned when a drain is requested while one is running.
	ErrDrainInProgress = errors.New("drain already in progress")

	// ErrOffline is returned when a drain is requested while offline.
	ErrOffline = errors.New("offline")

	errNoRemoteIDInResponse = errors.New("create response carried no id")
)
