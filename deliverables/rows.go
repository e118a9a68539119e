package deliverables

import (
	"marketingflow/backend"
)

// StatusTodo is the initial status of every planned deliverable.
const StatusTodo = "Todo"

// Fields is the column order of a deliverable row.
var Fields = []string{"Platform", "AssetType", "AssetLink", "Caption", "CTA_Comment", "Status", "Owner", "DueDate"}

// Row is one planned post. Owner and DueDate are left for people to fill in.
type Row struct {
	Platform   string `json:"Platform"`
	AssetType  string `json:"AssetType"`
	AssetLink  string `json:"AssetLink"`
	Caption    string `json:"Caption"`
	CTAComment string `json:"CTA_Comment"`
	Status     string `json:"Status"`
	Owner      string `json:"Owner"`
	DueDate    string `json:"DueDate"`
}

// Values returns the row in Fields order.
func (r Row) Values() []string {
	return []string{r.Platform, r.AssetType, r.AssetLink, r.Caption, r.CTAComment, r.Status, r.Owner, r.DueDate}
}

const carouselPending = "(upload planned)"

type platformPlan struct {
	platform  string
	assetType string
	cta       string
	carousel  bool
}

var plans = []platformPlan{
	{platform: "YouTube Shorts", assetType: "Video Reup (cut)", cta: "Which part was most useful to you? Comment and we'll make part 2!"},
	{platform: "TikTok", assetType: "Video Reup (cut + music + subtitle)", cta: "Which part should we dig into next?"},
	{platform: "Instagram", assetType: "Image Carousel", cta: "👉 Save this for later and share it with a friend!", carousel: true},
	{platform: "Facebook Page", assetType: "Caption-only", cta: "Agree or disagree with any point? Let us know in the comments!"},
}

// BuildRows plans one post per platform around the analysed video, all
// sharing the short caption. Without a video analysis there is nothing to plan.
func BuildRows(video *backend.VideoAnalysis, page *backend.PageAnalysis) []Row {
	if video == nil {
		return nil
	}

	caption := ShortCaption(page)
	rows := make([]Row, 0, len(plans))
	for _, p := range plans {
		link := video.SourceURL
		if p.carousel {
			link = carouselLink(video)
		}
		rows = append(rows, Row{
			Platform:   p.platform,
			AssetType:  p.assetType,
			AssetLink:  link,
			Caption:    caption,
			CTAComment: p.cta,
			Status:     StatusTodo,
		})
	}
	return rows
}

func carouselLink(video *backend.VideoAnalysis) string {
	if cd := video.ContentDeliverables; cd != nil {
		if cd.CarouselZipURL != "" {
			return cd.CarouselZipURL
		}
		if len(cd.CarouselImages) > 0 {
			return cd.CarouselImages[0]
		}
	}
	return carouselPending
}
