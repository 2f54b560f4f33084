package bulkscan

// InitiateRequest is the POST /api/bulk-scans request body.
type InitiateRequest struct {
	CommunityServerID  string   `json:"community_server_id"`
	ChannelIDs         []string `json:"channel_ids"`
	WindowDays         int      `json:"window_days"`
	VibecheckDebugMode bool     `json:"vibecheck_debug_mode"`
}

// InitiateResponse is the POST /api/bulk-scans response body.
type InitiateResponse struct {
	ScanID string `json:"scan_id"`
	Status string `json:"status"`
}
