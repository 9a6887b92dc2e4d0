package storage

import "rewardScope/internal/model"

// Journal defines a sink for action records.
type Journal interface {
	AppendActions(actions []model.ActionRecord) error
}
