package store

import "errors"

var (
	// ErrCorruptedKeeperDB For some reason, db on disk representation have changed
	ErrCorruptedKeeperDB = errors.New("keeper db is corrupted")

	// ErrDuplicateCommitment The commitment we try to add already exists in db
	ErrDuplicateCommitment = errors.New("commitment already exists")

	// ErrRequestNotFound The request we try to update is not found in db
	ErrRequestNotFound = errors.New("request not found")

	// ErrProgressNotFound No scanning progress is stored yet
	ErrProgressNotFound = errors.New("scanning progress not found")
)
