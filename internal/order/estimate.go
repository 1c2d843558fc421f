package order

import (
	"time"

	"github.com/Z1Code/gastrocloud-sub000/internal/repo"
)

// Base prep windows per station, in seconds. The order's window is the
// maximum across its lines plus order-type padding.
var stationPrepSeconds = map[repo.Station]int{
	repo.StationKitchen: 900,
	repo.StationGrill:   1200,
	repo.StationBar:     300,
	repo.StationDessert: 600,
}

const deliveryPaddingSeconds = 300

// EstimateReadyTime fills TotalSeconds and EstimatedReadyAt when the channel
// did not supply them.
func EstimateReadyTime(order *repo.Order, now time.Time) {
	if order.TotalSeconds > 0 && order.EstimatedReadyAt != nil {
		return
	}

	window := stationPrepSeconds[repo.StationKitchen]
	for _, item := range order.Items {
		if secs, ok := stationPrepSeconds[item.Station]; ok && secs > window {
			window = secs
		}
	}
	if order.OrderType == repo.OrderTypeDelivery {
		window += deliveryPaddingSeconds
	}

	if order.TotalSeconds == 0 {
		order.TotalSeconds = window
	}
	if order.EstimatedReadyAt == nil {
		readyAt := now.Add(time.Duration(order.TotalSeconds) * time.Second)
		order.EstimatedReadyAt = &readyAt
	}
}
