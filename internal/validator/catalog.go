package validator

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"rideguardian/internal/constants"
	"rideguardian/internal/models"
)

// Finding - сработавшее правило на конкретной поездке.
type Finding struct {
	Description string
	Fix         string
}

// Rule - запись каталога правил.
type Rule struct {
	ID          string
	Name        string
	Severity    string
	Category    string
	Score       int
	Action      string
	AutoFixable bool
	Default     string
	ConfigKey   string // ключ конфигурации тенанта, переопределяющий значение правила
	Eval        func(ctx context.Context, c *Check) (*Finding, error)
}

const (
	// Перерыв, после которого цепочка поездок считается прерванной (минуты).
	drivingBreakMinutes = 15
	// Допустимый объезд для заказа, полученного во время поездки (км).
	routeToleranceKm = 2.0
)

var catalog []Rule

// Register добавляет правило в конец каталога.
func Register(r Rule) {
	catalog = append(catalog, r)
}

// Catalog возвращает копию каталога в порядке регистрации.
func Catalog() []Rule {
	out := make([]Rule, len(catalog))
	copy(out, catalog)
	return out
}

func lookupRule(id string) (Rule, bool) {
	for _, r := range catalog {
		if r.ID == id {
			return r, true
		}
	}
	return Rule{}, false
}

func defaultValue(id string) string {
	for _, d := range constants.DefaultRules {
		if d.Name == id {
			return d.Value
		}
	}
	return ""
}

func init() {
	Register(Rule{
		ID: constants.RULE_SHIFT_START_AT_HQ, Name: "Schichtbeginn am Betriebssitz",
		Severity: models.SeverityCritical, Category: models.CategoryDistance, Score: 9,
		Action: "Erste Fahrt am Betriebssitz beginnen", AutoFixable: true,
		Eval: func(ctx context.Context, c *Check) (*Finding, error) {
			if !c.FirstOfShift || c.HQ == "" {
				return nil, nil
			}
			ok, err := c.atHQ(ctx, c.Ride.PickupLocation)
			if err != nil || ok {
				return nil, err
			}
			return &Finding{
				Description: fmt.Sprintf("Erste Fahrt der Schicht beginnt nicht am Betriebssitz (%s)", c.Ride.PickupLocation),
				Fix:         "Abholort auf " + c.HQ + " setzen",
			}, nil
		},
	})
	Register(Rule{
		ID: constants.RULE_PICKUP_DISTANCE, Name: "Anfahrt zum Abholort",
		Severity: models.SeverityWarning, Category: models.CategoryDistance, Score: 5,
		Action: "Auftragsannahme und Anfahrt prüfen", ConfigKey: constants.CFG_MAX_PICKUP_DISTANCE_MINUTES,
		Eval: func(ctx context.Context, c *Check) (*Finding, error) {
			if c.Ride.IsReserved {
				return nil, nil
			}
			from := c.currentLocation()
			if from == "" || c.Ride.PickupLocation == "" {
				return nil, nil
			}
			minutes, err := c.minutes(ctx, from, c.Ride.PickupLocation)
			if err != nil || minutes <= c.Float() {
				return nil, err
			}
			return &Finding{Description: fmt.Sprintf("Anfahrt von %.0f Min. überschreitet %.0f Min.", minutes, c.Float())}, nil
		},
	})
	Register(Rule{
		ID: constants.RULE_POST_RIDE_LOGIC, Name: "Anschluss an vorherige Fahrt",
		Severity: models.SeverityWarning, Category: models.CategoryBusinessLogic, Score: 5,
		Action: "Reihenfolge der Fahrten prüfen", ConfigKey: constants.CFG_MAX_PREVIOUS_DEST_MINUTES,
		Eval: func(ctx context.Context, c *Check) (*Finding, error) {
			if c.Prev == nil || c.Prev.Destination == "" || c.Ride.PickupLocation == "" {
				return nil, nil
			}
			minutes, err := c.minutes(ctx, c.Prev.Destination, c.Ride.PickupLocation)
			if err != nil || minutes <= c.Float() {
				return nil, err
			}
			return &Finding{Description: fmt.Sprintf("Abholort %.0f Min. vom letzten Zielort entfernt (max. %.0f)", minutes, c.Float())}, nil
		},
	})
	Register(Rule{
		ID: constants.RULE_NEXT_JOB_DISTANCE, Name: "Entfernung zum nächsten Auftrag",
		Severity: models.SeverityWarning, Category: models.CategoryDistance, Score: 4,
		Action: "Nächsten Auftrag prüfen", ConfigKey: constants.CFG_MAX_NEXT_JOB_DISTANCE_MINUTES,
		Eval: func(ctx context.Context, c *Check) (*Finding, error) {
			if c.Next == nil || c.Next.PickupLocation == "" || c.Ride.Destination == "" {
				return nil, nil
			}
			minutes, err := c.minutes(ctx, c.Ride.Destination, c.Next.PickupLocation)
			if err != nil || minutes <= c.Float() {
				return nil, err
			}
			return &Finding{Description: fmt.Sprintf("Nächster Auftrag %.0f Min. entfernt (max. %.0f)", minutes, c.Float())}, nil
		},
	})
	Register(Rule{
		ID: constants.RULE_HQ_DEVIATION, Name: "Abweichung vom Betriebssitz",
		Severity: models.SeverityWarning, Category: models.CategoryDistance, Score: 5,
		Action: "Rückfahrt zum Betriebssitz prüfen", ConfigKey: constants.CFG_MAX_HQ_DEVIATION_KM,
		Eval: func(ctx context.Context, c *Check) (*Finding, error) {
			if c.Next == nil || c.HQ == "" || c.Ride.Destination == "" || c.Next.PickupLocation == "" {
				return nil, nil
			}
			here, err := c.km(ctx, c.Ride.Destination, c.HQ)
			if err != nil {
				return nil, err
			}
			there, err := c.km(ctx, c.Next.PickupLocation, c.HQ)
			if err != nil {
				return nil, err
			}
			if dev := there - here; dev > c.Float() {
				return &Finding{Description: fmt.Sprintf("Entfernung vom Betriebssitz wächst um %.1f km (max. %.1f)", dev, c.Float())}, nil
			}
			return nil, nil
		},
	})
	Register(Rule{
		ID: constants.RULE_ASSIGNED_DURING_RIDE, Name: "Auftrag während der Fahrt",
		Severity: models.SeverityInfo, Category: models.CategoryBusinessLogic, Score: 2,
		Action: "Route der laufenden Fahrt prüfen",
		Eval: func(ctx context.Context, c *Check) (*Finding, error) {
			if !c.Ride.AssignedDuringRide {
				return nil, nil
			}
			desc := "Auftrag wurde während einer laufenden Fahrt erhalten"
			if c.Prev != nil && c.Prev.PickupLocation != "" && c.Prev.Destination != "" && c.Ride.PickupLocation != "" {
				on, err := c.maps.IsLocationOnRoute(ctx, c.Prev.PickupLocation, c.Prev.Destination, c.Ride.PickupLocation, routeToleranceKm)
				if err == nil && !on {
					desc += ", Abholort liegt nicht auf der Route"
				}
			}
			return &Finding{Description: desc}, nil
		},
	})
	Register(Rule{
		ID: constants.RULE_TIME_SEQUENCE, Name: "Zeitliche Reihenfolge",
		Severity: models.SeverityCritical, Category: models.CategoryTime, Score: 10,
		Action: "Zeiten korrigieren", AutoFixable: true,
		Eval: func(ctx context.Context, c *Check) (*Finding, error) {
			r := c.Ride
			if !r.DropoffTime.Valid {
				if r.Status == constants.RIDE_STATUS_COMPLETED {
					return &Finding{Description: "Abgeschlossene Fahrt ohne Fahrtende"}, nil
				}
				return nil, nil
			}
			if r.DropoffTime.Time.After(r.PickupTime) {
				return nil, nil
			}
			return &Finding{Description: "Fahrtende liegt nicht nach dem Fahrtbeginn", Fix: "Fahrtende nach " + r.PickupTime.Format("15:04") + " setzen"}, nil
		},
	})
	Register(Rule{
		ID: constants.RULE_MINIMUM_DURATION, Name: "Mindestfahrtdauer",
		Severity: models.SeverityWarning, Category: models.CategoryTime, Score: 3,
		Action: "Fahrtzeiten prüfen",
		Eval: func(ctx context.Context, c *Check) (*Finding, error) {
			d := c.Ride.DurationMinutes()
			if d <= 0 || d >= c.Float() {
				return nil, nil
			}
			return &Finding{Description: fmt.Sprintf("Fahrtdauer %.1f Min. unter Mindestdauer %.0f Min.", d, c.Float())}, nil
		},
	})
	Register(Rule{
		ID: constants.RULE_DAILY_WORK_LIMIT, Name: "Tägliche Höchstarbeitszeit",
		Severity: models.SeverityCritical, Category: models.CategoryWorkingTime, Score: 9,
		Action: "Fahrt verschieben oder aufteilen",
		Eval: func(ctx context.Context, c *Check) (*Finding, error) {
			h := c.dailyHours()
			if h <= c.Float() {
				return nil, nil
			}
			return &Finding{Description: fmt.Sprintf("Tägliche Arbeitszeit von %.1f Std. überschreitet Limit von %.0f Std.", h, c.Float())}, nil
		},
	})
	Register(Rule{
		ID: constants.RULE_WEEKLY_WORK_LIMIT, Name: "Wöchentliche Höchstarbeitszeit",
		Severity: models.SeverityWarning, Category: models.CategoryWorkingTime, Score: 7,
		Action: "Arbeitszeit umverteilen oder reduzieren",
		Eval: func(ctx context.Context, c *Check) (*Finding, error) {
			var h float64
			for _, sh := range c.WeekShifts {
				h += shiftHours(sh)
			}
			if h <= c.Float() {
				return nil, nil
			}
			y, w := c.Ride.PickupTime.ISOWeek()
			return &Finding{Description: fmt.Sprintf("Arbeitszeit in KW %d/%d von %.1f Std. überschreitet %.0f Std.", w, y, h, c.Float())}, nil
		},
	})
	Register(Rule{
		ID: constants.RULE_DAILY_REST, Name: "Tägliche Ruhezeit",
		Severity: models.SeverityCritical, Category: models.CategoryWorkingTime, Score: 8,
		Action: "Fahrt später beginnen",
		Eval: func(ctx context.Context, c *Check) (*Finding, error) {
			rest, ok := c.restHours()
			if !ok || rest >= c.Float() {
				return nil, nil
			}
			return &Finding{Description: fmt.Sprintf("Ruhezeit von %.1f Std. unterschreitet %.0f Std.", rest, c.Float())}, nil
		},
	})
	Register(Rule{
		ID: constants.RULE_CONTINUOUS_DRIVING, Name: "Ununterbrochene Lenkzeit",
		Severity: models.SeverityWarning, Category: models.CategoryWorkingTime, Score: 6,
		Action: "Pause einlegen",
		Eval: func(ctx context.Context, c *Check) (*Finding, error) {
			h := c.continuousHours()
			if h <= c.Float() {
				return nil, nil
			}
			return &Finding{Description: fmt.Sprintf("Ununterbrochene Lenkzeit von %.1f Std. überschreitet %.1f Std.", h, c.Float())}, nil
		},
	})
	Register(Rule{
		ID: constants.RULE_DISTANCE_PLAUSIBILITY, Name: "Plausibilität der Entfernung",
		Severity: models.SeverityWarning, Category: models.CategoryDistance, Score: 5,
		Action: "Entfernung überprüfen und korrigieren", AutoFixable: true,
		Eval: func(ctx context.Context, c *Check) (*Finding, error) {
			r := c.Ride
			if r.DistanceKm <= 0 || r.PickupLocation == "" || r.Destination == "" {
				return nil, nil
			}
			est, err := c.km(ctx, r.PickupLocation, r.Destination)
			if err != nil || est <= 0 {
				return nil, err
			}
			dev := math.Abs(r.DistanceKm-est) / est * 100
			if dev <= c.Float() {
				return nil, nil
			}
			return &Finding{
				Description: fmt.Sprintf("Angegebene Entfernung %.1f km weicht um %.0f%% von %.1f km ab", r.DistanceKm, dev, est),
				Fix:         fmt.Sprintf("Entfernung auf %.1f km setzen", est),
			}, nil
		},
	})
	Register(Rule{
		ID: constants.RULE_ODOMETER_CONSISTENCY, Name: "Kilometerstand fortlaufend",
		Severity: models.SeverityCritical, Category: models.CategoryDistance, Score: 8,
		Action: "Kilometerstände korrigieren",
		Eval: func(ctx context.Context, c *Check) (*Finding, error) {
			r := c.Ride
			if r.OdometerStart.Valid && r.OdometerEnd.Valid && r.OdometerEnd.Float64 < r.OdometerStart.Float64 {
				return &Finding{Description: fmt.Sprintf("Kilometerstand Ende %.0f kleiner als Beginn %.0f", r.OdometerEnd.Float64, r.OdometerStart.Float64)}, nil
			}
			p := c.prevOnVehicle()
			if p != nil && p.OdometerEnd.Valid && r.OdometerStart.Valid && r.OdometerStart.Float64 < p.OdometerEnd.Float64 {
				return &Finding{Description: fmt.Sprintf("Kilometerstand %.0f kleiner als Ende der Fahrt #%d (%.0f)", r.OdometerStart.Float64, p.ID, p.OdometerEnd.Float64)}, nil
			}
			return nil, nil
		},
	})
	Register(Rule{
		ID: constants.RULE_COST_PLAUSIBILITY, Name: "Plausibilität der Kosten",
		Severity: models.SeverityWarning, Category: models.CategoryCost, Score: 4,
		Action: "Kosten überprüfen",
		Eval: func(ctx context.Context, c *Check) (*Finding, error) {
			r := c.Ride
			if r.DistanceKm <= 0 {
				return nil, nil
			}
			perKm := r.TotalCosts() / r.DistanceKm
			if perKm <= c.Float() {
				return nil, nil
			}
			return &Finding{Description: fmt.Sprintf("Kosten von %.2f €/km überschreiten %.2f €/km", perKm, c.Float())}, nil
		},
	})
	Register(Rule{
		ID: constants.RULE_FUEL_CONSISTENCY, Name: "Kraftstoffverbrauch",
		Severity: models.SeverityInfo, Category: models.CategoryFuel, Score: 3,
		Action: "Tankangaben prüfen", AutoFixable: true,
		Eval: func(ctx context.Context, c *Check) (*Finding, error) {
			r := c.Ride
			if r.FuelLiters <= 0 || r.DistanceKm <= 0 || c.Consumption <= 0 {
				return nil, nil
			}
			expected := r.DistanceKm * c.Consumption / 100
			dev := math.Abs(r.FuelLiters-expected) / expected * 100
			if dev <= c.Float() {
				return nil, nil
			}
			return &Finding{
				Description: fmt.Sprintf("Kraftstoff %.2f l weicht um %.0f%% vom erwarteten Verbrauch %.2f l ab", r.FuelLiters, dev, expected),
				Fix:         fmt.Sprintf("Kraftstoff auf %.2f l setzen", math.Round(expected*100)/100),
			}, nil
		},
	})
	Register(Rule{
		ID: constants.RULE_BUSINESS_PURPOSE_REQUIRED, Name: "Geschäftszweck erforderlich",
		Severity: models.SeverityCritical, Category: models.CategoryBusinessLogic, Score: 8,
		Action: "Geschäftszweck ergänzen",
		Eval: func(ctx context.Context, c *Check) (*Finding, error) {
			if !c.Ride.IsBusinessTrip || strings.TrimSpace(c.Ride.BusinessPurpose) != "" {
				return nil, nil
			}
			return &Finding{Description: "Geschäftsfahrt ohne Angabe des Geschäftszwecks"}, nil
		},
	})
	Register(Rule{
		ID: constants.RULE_REQUIRED_FIELDS, Name: "Pflichtfelder",
		Severity: models.SeverityCritical, Category: models.CategoryDataQuality, Score: 9,
		Action: "Alle Pflichtfelder ausfüllen",
		Eval: func(ctx context.Context, c *Check) (*Finding, error) {
			var missing []string
			r := c.Ride
			if r.PickupTime.IsZero() {
				missing = append(missing, "Abholzeit")
			}
			if strings.TrimSpace(r.PickupLocation) == "" {
				missing = append(missing, "Abholort")
			}
			if strings.TrimSpace(r.Destination) == "" {
				missing = append(missing, "Zielort")
			}
			if r.DriverID == 0 {
				missing = append(missing, "Fahrer")
			}
			if strings.TrimSpace(r.VehiclePlate) == "" {
				missing = append(missing, "Kennzeichen")
			}
			if len(missing) == 0 {
				return nil, nil
			}
			return &Finding{Description: "Fehlende Pflichtfelder: " + strings.Join(missing, ", ")}, nil
		},
	})
	Register(Rule{
		ID: constants.RULE_DUPLICATE_DETECTION, Name: "Duplikatserkennung",
		Severity: models.SeverityWarning, Category: models.CategoryDataQuality, Score: 6,
		Action: "Fahrten prüfen und ggf. zusammenführen",
		Eval: func(ctx context.Context, c *Check) (*Finding, error) {
			var ids []string
			for i := range c.DayRides {
				o := &c.DayRides[i]
				if o.ID == c.Ride.ID || !similarRides(c.Ride, *o, c.Float()) {
					continue
				}
				ids = append(ids, fmt.Sprintf("#%d", o.ID))
			}
			if len(ids) == 0 {
				return nil, nil
			}
			return &Finding{Description: "Mögliches Duplikat zu Fahrt " + strings.Join(ids, ", ")}, nil
		},
	})
	Register(Rule{
		ID: constants.RULE_TIME_GAP, Name: "Zeitabstand zur vorherigen Fahrt",
		Severity: models.SeverityWarning, Category: models.CategoryTime, Score: 3,
		Action: "Zeiten zwischen den Fahrten prüfen", ConfigKey: constants.CFG_TIME_TOLERANCE_MINUTES,
		Eval: func(ctx context.Context, c *Check) (*Finding, error) {
			p := c.prevInShift()
			if p == nil || !p.DropoffTime.Valid {
				return nil, nil
			}
			gap := c.Ride.PickupTime.Sub(p.DropoffTime.Time).Minutes()
			if math.Abs(gap) <= c.Float() {
				return nil, nil
			}
			return &Finding{Description: fmt.Sprintf("Zeitabstand von %.1f Min. zur Fahrt #%d außerhalb ±%.0f Min.", gap, p.ID, c.Float())}, nil
		},
	})
	Register(Rule{
		ID: constants.RULE_RETURN_TO_HQ, Name: "Rückkehr zum Betriebssitz",
		Severity: models.SeverityWarning, Category: models.CategoryBusinessLogic, Score: 4,
		Action: "Rückfahrt zum Betriebssitz erfassen",
		Eval: func(ctx context.Context, c *Check) (*Finding, error) {
			if !c.LastOfShift || c.HQ == "" || c.Shift == nil || c.Shift.Status != constants.SHIFT_STATUS_CLOSED {
				return nil, nil
			}
			ok, err := c.atHQ(ctx, c.Ride.Destination)
			if err != nil || ok {
				return nil, err
			}
			return &Finding{Description: "Letzte Fahrt der Schicht endet nicht am Betriebssitz"}, nil
		},
	})
	Register(Rule{
		ID: constants.RULE_DAILY_DISTANCE_LIMIT, Name: "Tägliche Fahrstrecke",
		Severity: models.SeverityWarning, Category: models.CategoryDistance, Score: 4,
		Action: "Kilometerangaben prüfen",
		Eval: func(ctx context.Context, c *Check) (*Finding, error) {
			var km float64
			for _, r := range c.DayRides {
				km += r.DistanceKm
			}
			if km <= c.Float() {
				return nil, nil
			}
			return &Finding{Description: fmt.Sprintf("Tagesstrecke von %.1f km überschreitet %.0f km", km, c.Float())}, nil
		},
	})
	Register(Rule{
		ID: constants.RULE_OVERNIGHT_TRIPS, Name: "Fahrt über Mitternacht",
		Severity: models.SeverityInfo, Category: models.CategoryTime, Score: 2,
		Action: "Datum des Fahrtendes prüfen",
		Eval: func(ctx context.Context, c *Check) (*Finding, error) {
			r := c.Ride
			if !r.DropoffTime.Valid || sameDay(r.PickupTime, r.DropoffTime.Time.In(r.PickupTime.Location())) {
				return nil, nil
			}
			return &Finding{Description: "Fahrt endet an einem anderen Kalendertag"}, nil
		},
	})
	Register(Rule{
		ID: constants.RULE_WEEKEND_BUSINESS_TRIPS, Name: "Geschäftsfahrt am Wochenende",
		Severity: models.SeverityInfo, Category: models.CategoryBusinessLogic, Score: 2,
		Action: "Geschäftszweck bestätigen",
		Eval: func(ctx context.Context, c *Check) (*Finding, error) {
			wd := c.Ride.PickupTime.Weekday()
			if !c.Ride.IsBusinessTrip || (wd != time.Saturday && wd != time.Sunday) {
				return nil, nil
			}
			return &Finding{Description: "Geschäftsfahrt am Wochenende"}, nil
		},
	})

	for i := range catalog {
		catalog[i].Default = defaultValue(catalog[i].ID)
	}
}

func similarRides(a, b models.Ride, toleranceMinutes float64) bool {
	if a.DriverID != b.DriverID || !sameDay(a.PickupTime, b.PickupTime.In(a.PickupTime.Location())) {
		return false
	}
	if !strings.EqualFold(strings.TrimSpace(a.PickupLocation), strings.TrimSpace(b.PickupLocation)) ||
		!strings.EqualFold(strings.TrimSpace(a.Destination), strings.TrimSpace(b.Destination)) {
		return false
	}
	return math.Abs(a.PickupTime.Sub(b.PickupTime).Minutes()) < toleranceMinutes
}

func sameDay(a, b time.Time) bool {
	ya, ma, da := a.Date()
	yb, mb, db := b.Date()
	return ya == yb && ma == mb && da == db
}

func shiftHours(sh models.Shift) float64 {
	if !sh.EndTime.Valid {
		return 0
	}
	if sh.ActualHours > 0 {
		return sh.ActualHours
	}
	return sh.EndTime.Time.Sub(sh.StartTime).Hours()
}

func sortRides(rides []models.Ride) {
	sort.SliceStable(rides, func(i, j int) bool {
		if rides[i].PickupTime.Equal(rides[j].PickupTime) {
			return rides[i].ID < rides[j].ID
		}
		return rides[i].PickupTime.Before(rides[j].PickupTime)
	})
}
