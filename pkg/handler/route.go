package handler

// Route type
type Route string

const (
	// RouteList lists the versions of the data and archive keys
	RouteList Route = "list"
	// RouteDownload streams a single version
	RouteDownload Route = "download"
)

const (
	// DownloadTypeData selects the data key
	DownloadTypeData = "data"
	// DownloadTypeSQL is accepted for the data key as well
	DownloadTypeSQL = "sql"
	// DownloadTypeMedia selects the archive key
	DownloadTypeMedia = "media"
)
