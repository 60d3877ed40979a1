/*
rate.go - Statutory overtime pay

FORMULAS:
  ORP = basic salary / 26   (ordinary rate of pay, per day)
  HRP = ORP / 8             (hourly rate of pay)

  day type        hours <= 4      4 < hours <= 8    hours > 8
  weekday         1.5 x HRP x h   (linear)          (linear)
  saturday        2 x HRP x h     (linear)          (linear)
  sunday          0.5 x ORP       1 x ORP           1 x ORP + 2 x HRP x (h - 8)
  public_holiday  2 x ORP         2 x ORP           2 x ORP + 3 x HRP x (h - 8)

PRECISION:
  All arithmetic is decimal. Only the final amount is rounded, half-up to
  2 places; ORP and HRP are kept unrounded so that 4h on a public holiday for
  a 3000 salary is 230.77 and not 230.76.
*/
package ot

import (
	"time"

	"github.com/shopspring/decimal"
)

var (
	workingDaysPerMonth = decimal.NewFromInt(26)
	hoursPerDay         = decimal.NewFromInt(8)
	halfDayHours        = decimal.NewFromInt(4)

	multHalf        = decimal.RequireFromString("0.5")
	multOne         = decimal.NewFromInt(1)
	multOneAndHalf  = decimal.RequireFromString("1.5")
	multTwo         = decimal.NewFromInt(2)
	multThree       = decimal.NewFromInt(3)
	currencyDecimal = int32(2)
)

// RateBreakdown is the priced result of one claim.
type RateBreakdown struct {
	BasicSalary decimal.Decimal `json:"basic_salary"`
	DayType     DayType         `json:"day_type"`
	Hours       decimal.Decimal `json:"hours"`
	ORP         decimal.Decimal `json:"orp"`
	HRP         decimal.Decimal `json:"hrp"`
	Amount      decimal.Decimal `json:"amount"`
	Formula     string          `json:"formula"`
}

// ORP returns the ordinary daily rate for a monthly salary.
func ORP(basicSalary decimal.Decimal) decimal.Decimal {
	return basicSalary.Div(workingDaysPerMonth)
}

// HRP returns the hourly rate for a monthly salary.
func HRP(basicSalary decimal.Decimal) decimal.Decimal {
	return ORP(basicSalary).Div(hoursPerDay)
}

// Calculate prices hours of overtime on a day type for a monthly basic salary.
// Invalid input never yields a zero amount; it yields a *RateInputError.
func Calculate(basicSalary decimal.Decimal, dayType DayType, hours decimal.Decimal) (RateBreakdown, error) {
	if !hours.IsPositive() {
		return RateBreakdown{}, &RateInputError{Field: "hours", Value: hours.String(), Cause: ErrNonPositiveHours}
	}
	if !basicSalary.IsPositive() {
		return RateBreakdown{}, &RateInputError{Field: "basic_salary", Value: basicSalary.String(), Cause: ErrNonPositiveSalary}
	}
	if !dayType.IsValid() {
		return RateBreakdown{}, &RateInputError{Field: "day_type", Value: string(dayType), Cause: ErrUnknownDayType}
	}

	orp := ORP(basicSalary)
	hrp := orp.Div(hoursPerDay)
	excess := hours.Sub(hoursPerDay)

	var amount decimal.Decimal
	var formula string

	switch dayType {
	case DayWeekday:
		amount = multOneAndHalf.Mul(hrp).Mul(hours)
		formula = "1.5 x HRP x hours"
	case DaySaturday:
		amount = multTwo.Mul(hrp).Mul(hours)
		formula = "2 x HRP x hours"
	case DaySunday:
		switch {
		case hours.LessThanOrEqual(halfDayHours):
			amount = multHalf.Mul(orp)
			formula = "0.5 x ORP"
		case hours.LessThanOrEqual(hoursPerDay):
			amount = multOne.Mul(orp)
			formula = "1 x ORP"
		default:
			amount = orp.Add(multTwo.Mul(hrp).Mul(excess))
			formula = "1 x ORP + 2 x HRP x (hours - 8)"
		}
	case DayPublicHoliday:
		if hours.LessThanOrEqual(hoursPerDay) {
			amount = multTwo.Mul(orp)
			formula = "2 x ORP"
		} else {
			amount = multTwo.Mul(orp).Add(multThree.Mul(hrp).Mul(excess))
			formula = "2 x ORP + 3 x HRP x (hours - 8)"
		}
	}

	return RateBreakdown{
		BasicSalary: basicSalary,
		DayType:     dayType,
		Hours:       hours,
		ORP:         orp,
		HRP:         hrp,
		Amount:      amount.Round(currencyDecimal),
		Formula:     formula,
	}, nil
}

// Sum totals already-rounded amounts for reporting.
func Sum(breakdowns ...RateBreakdown) decimal.Decimal {
	total := decimal.Zero
	for _, b := range breakdowns {
		total = total.Add(b.Amount)
	}
	return total
}

// ClassifyDate derives the day type of a work date. Public holidays win over
// the weekday.
func ClassifyDate(date time.Time, isPublicHoliday bool) DayType {
	if isPublicHoliday {
		return DayPublicHoliday
	}
	switch date.Weekday() {
	case time.Saturday:
		return DaySaturday
	case time.Sunday:
		return DaySunday
	default:
		return DayWeekday
	}
}
