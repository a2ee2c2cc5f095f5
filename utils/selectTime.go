package utils

import "time"

// SelectTime переводит значение с единицей измерения из конфига в time.Duration.
// Неизвестная единица считается секундами
func SelectTime(unit string, value int) time.Duration {
	switch unit {
	case "seconds":
		return time.Duration(value) * time.Second
	case "minutes":
		return time.Duration(value) * time.Minute
	case "hours":
		return time.Duration(value) * time.Hour
	case "days":
		return time.Duration(value) * 24 * time.Hour
	default:
		return time.Duration(value) * time.Second
	}
}
