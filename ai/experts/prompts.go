package experts

import "fmt"

// descriptions are the one-line capability descriptions enumerated in the
// router's classification prompt.
var descriptions = map[ID]string{
	Finance:   "For finance, investment, stock market, economics, business questions",
	Technical: "For programming, technology, software, coding, technical questions",
	General:   "For general knowledge, creative writing, casual conversation",
}

const financeTemplate = `You are a financial expert. Answer the following question with professional financial advice:

Question: %s

Provide a comprehensive, well-structured response that includes:
- Clear explanation of the financial concept
- Relevant examples or data points
- Practical implications or recommendations
- Risk considerations where applicable

Keep your response informative but accessible to a general audience.`

const technicalTemplate = `You are a technical expert and software engineer. Answer the following question with professional technical guidance:

Question: %s

Provide a comprehensive, well-structured response that includes:
- Clear technical explanation
- Code examples where relevant
- Best practices and recommendations
- Common pitfalls to avoid
- Related concepts or technologies

Keep your response technical but accessible to developers of varying skill levels.`

const generalTemplate = `You are a knowledgeable and helpful AI assistant. Answer the following question thoughtfully:

Question: %s

Provide a comprehensive, well-structured response that:
- Addresses the question directly and completely
- Provides relevant context and background information
- Offers practical insights or examples where applicable
- Maintains a helpful and engaging tone

Be informative, accurate, and helpful in your response.`

func renderPrompt(id ID, query string) string {
	switch id {
	case Finance:
		return fmt.Sprintf(financeTemplate, query)
	case Technical:
		return fmt.Sprintf(technicalTemplate, query)
	default:
		return fmt.Sprintf(generalTemplate, query)
	}
}
