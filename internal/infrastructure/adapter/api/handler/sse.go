package handler

import (
	"strconv"

	"github.com/amirhossein-jamali/escrow-engine/internal/domain/entity"
	"github.com/amirhossein-jamali/escrow-engine/internal/infrastructure/adapter/api/dto"
	"github.com/gin-contrib/sse"
)

func sseEvent(ev *entity.TransactionEvent) sse.Event {
	return sse.Event{
		Id:    strconv.FormatUint(ev.ID, 10),
		Event: "transaction." + string(ev.Event),
		Data:  dto.FromEvent(ev),
	}
}
