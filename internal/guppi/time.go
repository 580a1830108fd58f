package guppi

// Modified Julian Day time handling. MJD 0 is 1858-11-17T00:00:00Z; the Unix
// epoch 1970-01-01T00:00:00Z falls on MJD 40587.

const (
	secondsPerDay = 86400.0

	// mjdOfUnixEpoch is the MJD of 1970-01-01T00:00:00Z.
	mjdOfUnixEpoch = 40587.0
)

// MJDToUnix converts a Modified Julian Day value to Unix seconds.
// MJD 0 maps to -3506716800 (1858-11-17T00:00:00Z).
func MJDToUnix(mjd float64) float64 {
	return (mjd - mjdOfUnixEpoch) * secondsPerDay
}

// UnixToMJD converts Unix seconds to a Modified Julian Day value.
func UnixToMJD(unix float64) float64 {
	return unix/secondsPerDay + mjdOfUnixEpoch
}
