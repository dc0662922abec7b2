package store

import "municipio/queue-service/internal/models"

var transitionMap = map[string][]string{
	"call_next": {models.StatusWaiting},
	"finish":    {models.StatusCalled},
	"no_show":   {models.StatusCalled},
}

func ValidTransition(action, fromStatus string) bool {
	allowed, ok := transitionMap[action]
	if !ok {
		return false
	}
	for _, status := range allowed {
		if status == fromStatus {
			return true
		}
	}
	return false
}
