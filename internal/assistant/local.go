package assistant

import (
	"math/rand"
	"strings"
	"sync"
	"time"
)

type cannedReply struct {
	keywords []string
	text     string
}

// Checked in order; the first matching branch wins.
var cannedReplies = []cannedReply{
	{
		keywords: []string{"revenue", "sales"},
		text:     "Based on your revenue data, I can see that your monthly recurring revenue has increased by 15% compared to last month. The SaaS segment shows the strongest growth at 18%, while e-commerce is up 12%. Your top revenue drivers are subscription renewals and enterprise deals. Would you like me to create a detailed revenue breakdown chart?",
	},
	{
		keywords: []string{"product", "performing"},
		text:     "Your top performing products this month are: 1) Premium SaaS Plan (32% of revenue), 2) Enterprise Solution (28% of revenue), 3) Basic Plan (18% of revenue). The Premium plan shows 25% higher conversion rates and 40% lower churn compared to other products. I recommend focusing marketing efforts on the Premium tier.",
	},
	{
		keywords: []string{"customer", "retention"},
		text:     "I've analyzed your customer retention data and found that users who engage with your platform within the first 48 hours have 3x higher retention rates. Your 30-day retention is 78%, which is above industry average. The biggest drop-off occurs at day 7. I recommend implementing an onboarding email sequence to improve early engagement.",
	},
	{
		keywords: []string{"marketing", "channel"},
		text:     "Your marketing attribution analysis shows: Email campaigns have the highest ROI at 340%, followed by social media at 280%, and paid search at 220%. Organic search drives 45% of your traffic but has a lower conversion rate. I recommend increasing your email marketing budget and optimizing your organic content strategy.",
	},
	{
		keywords: []string{"anomaly", "unusual"},
		text:     "I've identified several anomalies in your data: 1) A 150% traffic spike on Tuesday correlated with your content marketing campaign, 2) Mobile conversion rates dropped 22% last week, 3) User acquisition costs decreased by 25% this week. The mobile issue appears to be related to a recent app update. Would you like me to investigate further?",
	},
	{
		keywords: []string{"forecast", "predict"},
		text:     "Based on current trends and seasonal patterns, I predict: Q4 revenue will increase by 23% compared to Q3, primarily driven by holiday campaigns. User acquisition costs will remain stable, and conversion rates should improve by 8% with your planned optimizations. The forecast confidence level is 85%.",
	},
}

var fallbackReplies = []string{
	"I've analyzed your data and found some interesting patterns. Your key metrics are trending positively, with revenue up 15% and user engagement increasing by 12%. Would you like me to dive deeper into any specific area?",
	"Based on your business data, I can see opportunities for optimization. Your conversion funnel shows a 15% drop-off at the checkout stage. I recommend A/B testing your checkout process to improve completion rates.",
	"Looking at your user behavior data, I notice that customers who use your mobile app have 40% higher lifetime value. Consider prioritizing mobile experience improvements to boost overall revenue.",
	"Your data shows strong growth in the SaaS segment, with 18% month-over-month increase. However, there's room for improvement in the e-commerce vertical. Would you like me to create a detailed comparison analysis?",
	"I've identified that your email marketing campaigns have the highest ROI at 340%. Your open rates are 15% above industry average, but click-through rates could be improved by 25% with better subject line optimization.",
}

// LocalResponder answers from a fixed set of canned analyses without calling
// any provider. It is safe for concurrent use.
type LocalResponder struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewLocalResponder seeds the fallback picker. A zero seed uses the clock.
func NewLocalResponder(seed int64) *LocalResponder {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &LocalResponder{rng: rand.New(rand.NewSource(seed))}
}

func (r *LocalResponder) Respond(query string) string {
	lower := strings.ToLower(query)
	for _, reply := range cannedReplies {
		for _, kw := range reply.keywords {
			if strings.Contains(lower, kw) {
				return reply.text
			}
		}
	}

	r.mu.Lock()
	i := r.rng.Intn(len(fallbackReplies))
	r.mu.Unlock()
	return fallbackReplies[i]
}
