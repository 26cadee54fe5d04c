package dto

// Envelope is the single response shape of the API.
type Envelope struct {
	Success bool        `json:"success"`
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Details interface{} `json:"details,omitempty"`
}

type Pagination struct {
	Page    int   `json:"page"`
	PerPage int   `json:"per_page"`
	Total   int64 `json:"total"`
	Pages   int64 `json:"pages"`
}

type PageData struct {
	Items      interface{} `json:"items"`
	Pagination Pagination  `json:"pagination"`
}

func Success(code int, message string, data interface{}) Envelope {
	return Envelope{Success: true, Code: code, Message: message, Data: data}
}

func Error(code int, message string, details interface{}) Envelope {
	return Envelope{Success: false, Code: code, Message: message, Details: details}
}

// Paginated wraps one page of items. pages is 0 for an empty result and
// never negative.
func Paginated(items interface{}, page, perPage int, total int64) Envelope {
	var pages int64
	if perPage > 0 && total > 0 {
		pages = (total + int64(perPage) - 1) / int64(perPage)
	}
	return Envelope{
		Success: true,
		Code:    200,
		Message: "ok",
		Data: PageData{
			Items: items,
			Pagination: Pagination{
				Page:    page,
				PerPage: perPage,
				Total:   total,
				Pages:   pages,
			},
		},
	}
}
