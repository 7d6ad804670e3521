package robots

import "github.com/temoto/robotstxt"

// RobotsResponse is a lightweight, observability-facing summary of a parsed
// robots.txt file. Allow/disallow decisions are delegated to
// robotstxt.RobotsData inside ruleSet; this type exists only for status
// reporting (CLI --status, logging).
type RobotsResponse struct {
	Host     string
	Sitemaps []string
}

// SummarizeRobotsData extracts the observable fields out of a parsed
// robots.txt document for reporting.
func SummarizeRobotsData(host string, data *robotstxt.RobotsData) RobotsResponse {
	if data == nil {
		return RobotsResponse{Host: host}
	}
	return RobotsResponse{Host: host, Sitemaps: data.Sitemaps}
}
