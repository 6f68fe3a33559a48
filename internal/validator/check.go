package validator

import (
	"context"
	"strconv"
	"strings"
	"time"

	"rideguardian/internal/mapping"
	"rideguardian/internal/models"
)

// Check - окружение одной поездки, которое видят правила.
type Check struct {
	Ride         models.Ride
	Prev         *models.Ride // предыдущая поездка водителя по времени подачи
	Next         *models.Ride
	Shift        *models.Shift
	PrevShift    *models.Shift
	FirstOfShift bool
	LastOfShift  bool
	DayRides     []models.Ride // поездки водителя за календарный день, включая Ride
	DayShifts    []models.Shift
	WeekShifts   []models.Shift // смены водителя за ISO-неделю
	HQ           string
	Consumption  float64

	value string
	maps  Maps
}

// Value - действующее значение параметра правила.
func (c *Check) Value() string { return c.value }

// Float разбирает значение параметра; десятичная запятая допускается.
func (c *Check) Float() float64 {
	v, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(c.value), ",", "."), 64)
	if err != nil {
		return 0
	}
	return v
}

func (c *Check) lookup(ctx context.Context, from, to string) (mapping.Result, error) {
	return c.maps.Lookup(ctx, from, to, true)
}

func (c *Check) minutes(ctx context.Context, from, to string) (float64, error) {
	if mapping.NormalizeAddress(from) == mapping.NormalizeAddress(to) {
		return 0, nil
	}
	res, err := c.lookup(ctx, from, to)
	return res.DurationMin, err
}

func (c *Check) km(ctx context.Context, from, to string) (float64, error) {
	if mapping.NormalizeAddress(from) == mapping.NormalizeAddress(to) {
		return 0, nil
	}
	res, err := c.lookup(ctx, from, to)
	return res.DistanceKm, err
}

// atHQ: адрес совпадает с адресом базы или лежит в пределах допуска правила (км).
func (c *Check) atHQ(ctx context.Context, address string) (bool, error) {
	if strings.TrimSpace(address) == "" {
		return false, nil
	}
	if strings.EqualFold(mapping.NormalizeAddress(address), mapping.NormalizeAddress(c.HQ)) {
		return true, nil
	}
	d, err := c.km(ctx, address, c.HQ)
	if err != nil {
		return false, err
	}
	return d <= c.Float(), nil
}

// prevInShift - предыдущая поездка той же смены (без смены - того же дня).
func (c *Check) prevInShift() *models.Ride {
	p := c.Prev
	if p == nil {
		return nil
	}
	if c.Ride.ShiftID.Valid || p.ShiftID.Valid {
		if p.ShiftID != c.Ride.ShiftID {
			return nil
		}
		return p
	}
	if !sameDay(p.PickupTime, c.Ride.PickupTime.In(p.PickupTime.Location())) {
		return nil
	}
	return p
}

// currentLocation - где находился автомобиль при получении заказа.
func (c *Check) currentLocation() string {
	if loc := strings.TrimSpace(c.Ride.AssignmentLocation); loc != "" {
		return loc
	}
	if p := c.prevInShift(); p != nil && p.Destination != "" {
		return p.Destination
	}
	if c.FirstOfShift {
		return c.HQ
	}
	if c.Prev != nil {
		return c.Prev.Destination
	}
	return ""
}

func (c *Check) prevOnVehicle() *models.Ride {
	if c.Prev == nil || c.Ride.VehiclePlate == "" || !strings.EqualFold(c.Prev.VehiclePlate, c.Ride.VehiclePlate) {
		return nil
	}
	return c.Prev
}

func (c *Check) dailyHours() float64 {
	var h float64
	if len(c.DayShifts) > 0 {
		for _, sh := range c.DayShifts {
			h += shiftHours(sh)
		}
		return h
	}
	for _, r := range c.DayRides {
		h += r.DurationMinutes() / 60
	}
	return h
}

// restHours - перерыв перед началом смены. ok=false, если сравнивать не с чем.
func (c *Check) restHours() (float64, bool) {
	if !c.FirstOfShift {
		return 0, false
	}
	if c.Shift != nil {
		if c.PrevShift == nil || !c.PrevShift.EndTime.Valid {
			return 0, false
		}
		return c.Shift.StartTime.Sub(c.PrevShift.EndTime.Time).Hours(), true
	}
	p := c.Prev
	if p == nil || !p.DropoffTime.Valid || sameDay(p.PickupTime, c.Ride.PickupTime.In(p.PickupTime.Location())) {
		return 0, false
	}
	return c.Ride.PickupTime.Sub(p.DropoffTime.Time).Hours(), true
}

// continuousHours - длительность цепочки поездок без перерыва, заканчивающейся на Ride.
func (c *Check) continuousHours() float64 {
	idx := indexOfRide(c.DayRides, c.Ride)
	if idx < 0 {
		return c.Ride.DurationMinutes() / 60
	}
	end := c.Ride.PickupTime
	if c.Ride.DropoffTime.Valid {
		end = c.Ride.DropoffTime.Time
	}
	chainStart := c.DayRides[idx].PickupTime
	for j := idx - 1; j >= 0; j-- {
		p := c.DayRides[j]
		if !p.DropoffTime.Valid || chainStart.Sub(p.DropoffTime.Time) >= drivingBreakMinutes*time.Minute {
			break
		}
		chainStart = p.PickupTime
	}
	return end.Sub(chainStart).Hours()
}

func indexOfRide(rides []models.Ride, r models.Ride) int {
	for i := range rides {
		if r.ID != 0 && rides[i].ID == r.ID {
			return i
		}
		if r.ID == 0 && rides[i].ID == 0 && rides[i].PickupTime.Equal(r.PickupTime) {
			return i
		}
	}
	return -1
}

// mergeRide подставляет r в список (заменяя сохраненную версию) и сортирует по времени подачи.
func mergeRide(rides []models.Ride, r models.Ride) []models.Ride {
	out := make([]models.Ride, 0, len(rides)+1)
	for _, o := range rides {
		if r.ID != 0 && o.ID == r.ID {
			continue
		}
		out = append(out, o)
	}
	out = append(out, r)
	sortRides(out)
	return out
}
