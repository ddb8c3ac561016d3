// Package domain models ski resort condition reports and the text protocol
// they are delivered in.
//
// # Data Source
//
// Reports come from a small set of report servers. Each server publishes one
// plain-text document per resort at a path relative to the server root, plus a
// metadata document at "/server_info.php" describing its own version. The
// client picks the newest server (see the wakemeski adapter) and then fetches
// one report per resort.
//
// # Line Protocol
//
// Every document is a sequence of lines, one "key = value" pair per line:
//
//	location = OSOALP
//	date = 12-6-2008
//	lifts.open = 5
//	lifts.total = 10
//	snow.total = 60 48
//	snow.daily = Fresh(4.3) 48hr(6)
//	snow.fresh = 4.3
//	snow.units = inches
//	temp.readings = 41/33 44/38 43/34
//	weather.forecast.when.0 = Tonight
//	weather.forecast.desc.0 = Snow. New snow accumulation of 4 to 8 inches.
//	weather.forecast.exact.0 = 1291687200
//
// Lines are split on the first '=' only, so values may contain '='. Both
// sides are trimmed. A line without a separator, or with nothing on one side,
// is logged and skipped; unknown keys are logged and ignored. Parsing never
// fails: every input produces a Report.
//
// Integer fields ("trails.open", "lifts.total", ...) accept an empty value or
// "n/a" as zero. Any other unparsable text also yields zero, with a warning.
//
// Space-separated list fields: "snow.total", "snow.daily", "temp.readings".
//
// Forecast slots are indexed by a single trailing digit. A slot becomes a
// Weather entry only when both its "when" and "desc" values are present; the
// optional "exact" value carries the forecast time as unix seconds.
//
// Errors:
//
//	"err.msg"            server-side error text, never localized
//	"err.msg.localized"  error text that is already fit for display
//
// A report carrying either error is "errored": its measurement fields are
// reset to their defaults so that it never mixes data and failure.
//
// # Server Metadata
//
// The metadata document uses the same line format:
//
//	server.version = 5
//	ap.min.supported.version = 2
//	ap.latest.version = 7
//	alert.regex.0 = snow accumulation of (\d+) to (\d+)
//
// Version values that are missing or unparsable are -1 ([UnknownVersion]).
// Every key beginning with "alert.regex" contributes one alert expression;
// the last capture group of a matching expression is the expected
// accumulation. Expressions are compiled once, when the metadata is parsed.
//
// # Units
//
// Snow amounts are reported in inches or centimeters ("snow.units"; anything
// other than "inches" means centimeters). Comparisons against a user
// [Threshold] convert both sides to centimeters first (1 in = 2.54 cm).
package domain
