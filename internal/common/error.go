package common

import "fmt"

var (
	ErrRecordNotFound           = fmt.Errorf("record not found")
	ErrAssetNotFound            = fmt.Errorf("asset not found")
	ErrNoRecordID               = fmt.Errorf("cannot resolve record id")
	ErrPathCollision            = fmt.Errorf("two records resolve to the same output path")
	ErrSyncRunHasAlreadyStarted = fmt.Errorf("sync run has already started")
)
