package dify

// Service groups the sub-APIs that share one Client.
type Service struct {
	Client    *Client
	Datasets  *DatasetAPI
	Documents *DocumentAPI
	Segments  *SegmentAPI
	Search    *SearchAPI
}

func NewService(c *Client, opts ...DocumentOption) *Service {
	return &Service{
		Client:    c,
		Datasets:  NewDatasetAPI(c),
		Documents: NewDocumentAPI(c, opts...),
		Segments:  NewSegmentAPI(c),
		Search:    NewSearchAPI(c),
	}
}
