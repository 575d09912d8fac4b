package xapi

// Wire records mirror the broker's JSON field names exactly.

type loginArguments struct {
	UserId   string `json:"userId"`
	Password string `json:"password"`
	AppName  string `json:"appName,omitempty"`
}

type redirectRecord struct {
	Address       string `json:"address"`
	MainPort      int    `json:"mainPort"`
	StreamingPort int    `json:"streamingPort"`
}

type symbolRecord struct {
	Symbol         string  `json:"symbol"`
	Description    string  `json:"description"`
	CategoryName   string  `json:"categoryName"`
	Currency       string  `json:"currency"`
	CurrencyProfit string  `json:"currencyProfit"`
	Precision      int     `json:"precision"`
	TickSize       float64 `json:"tickSize"`
	TickValue      float64 `json:"tickValue"`
	ContractSize   float64 `json:"contractSize"`
	LotMin         float64 `json:"lotMin"`
	LotMax         float64 `json:"lotMax"`
	LotStep        float64 `json:"lotStep"`
	Leverage       float64 `json:"leverage"`
	Ask            float64 `json:"ask"`
	Bid            float64 `json:"bid"`
	Time           int64   `json:"time"`
}

type hoursRecord struct {
	Day   int   `json:"day"`
	FromT int64 `json:"fromT"`
	ToT   int64 `json:"toT"`
}

type tradingHoursRecord struct {
	Symbol  string        `json:"symbol"`
	Quotes  []hoursRecord `json:"quotes"`
	Trading []hoursRecord `json:"trading"`
}

type tickRecord struct {
	Symbol    string  `json:"symbol"`
	Ask       float64 `json:"ask"`
	Bid       float64 `json:"bid"`
	AskVolume float64 `json:"askVolume"`
	BidVolume float64 `json:"bidVolume"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Level     int     `json:"level"`
	SpreadRaw float64 `json:"spreadRaw"`
	Timestamp int64   `json:"timestamp"`
}

type tickPricesRecord struct {
	Quotations []tickRecord `json:"quotations"`
}

type chartInfo struct {
	Symbol string `json:"symbol"`
	Period int    `json:"period"`
	Start  int64  `json:"start"`
	End    int64  `json:"end,omitempty"`
	Ticks  int    `json:"ticks,omitempty"`
}

type chartArguments struct {
	Info chartInfo `json:"info"`
}

type rateInfoRecord struct {
	Ctm   int64   `json:"ctm"`
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
	Vol   float64 `json:"vol"`
}

type chartRecord struct {
	Digits    int              `json:"digits"`
	RateInfos []rateInfoRecord `json:"rateInfos"`
}

type marginLevelRecord struct {
	Balance     float64 `json:"balance"`
	Credit      float64 `json:"credit"`
	Currency    string  `json:"currency"`
	Equity      float64 `json:"equity"`
	Margin      float64 `json:"margin"`
	MarginFree  float64 `json:"margin_free"`
	MarginLevel float64 `json:"margin_level"`
}

// tradeRecord is shared by getTrades, getTradesHistory and the trade stream.
// Type and State are only present on stream records.
type tradeRecord struct {
	Cmd           int     `json:"cmd"`
	Order         int64   `json:"order"`
	Order2        int64   `json:"order2"`
	Position      int64   `json:"position"`
	Symbol        string  `json:"symbol"`
	Volume        float64 `json:"volume"`
	OpenPrice     float64 `json:"open_price"`
	ClosePrice    float64 `json:"close_price"`
	Sl            float64 `json:"sl"`
	Tp            float64 `json:"tp"`
	Profit        float64 `json:"profit"`
	Comment       string  `json:"comment"`
	CustomComment string  `json:"customComment"`
	OpenTime      int64   `json:"open_time"`
	CloseTime     int64   `json:"close_time"`
	Closed        bool    `json:"closed"`
	Digits        int     `json:"digits"`
	Type          *int    `json:"type,omitempty"`
	State         string  `json:"state,omitempty"`
}

type tradesArguments struct {
	OpenedOnly bool `json:"openedOnly"`
}

type tradesHistoryArguments struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// TradeTransInfo is the payload of a tradeTransaction command.
type TradeTransInfo struct {
	Cmd           TradeOperation  `json:"cmd"`
	CustomComment string          `json:"customComment,omitempty"`
	Expiration    int64           `json:"expiration"`
	Offset        int             `json:"offset"`
	Order         int64           `json:"order"`
	Price         float64         `json:"price"`
	Sl            float64         `json:"sl"`
	Symbol        string          `json:"symbol"`
	Tp            float64         `json:"tp"`
	Type          TransactionType `json:"type"`
	Volume        float64         `json:"volume"`
}

type tradeTransactionArguments struct {
	TradeTransInfo TradeTransInfo `json:"tradeTransInfo"`
}

type orderRecord struct {
	Order int64 `json:"order"`
}

type tradeStatusRecord struct {
	CustomComment string  `json:"customComment"`
	Message       string  `json:"message"`
	Order         int64   `json:"order"`
	Price         float64 `json:"price"`
	RequestStatus int     `json:"requestStatus"`
}

type profitRecord struct {
	Order    int64   `json:"order"`
	Order2   int64   `json:"order2"`
	Position int64   `json:"position"`
	Profit   float64 `json:"profit"`
}

type balanceRecord struct {
	Balance     float64 `json:"balance"`
	Credit      float64 `json:"credit"`
	Equity      float64 `json:"equity"`
	Margin      float64 `json:"margin"`
	MarginFree  float64 `json:"marginFree"`
	MarginLevel float64 `json:"marginLevel"`
}

type newsRecord struct {
	Body  string `json:"body"`
	Key   string `json:"key"`
	Time  int64  `json:"time"`
	Title string `json:"title"`
}

type keepAliveRecord struct {
	Timestamp int64 `json:"timestamp"`
}

// Streamed candles carry absolute prices, unlike chart responses.
type candleRecord struct {
	Symbol string  `json:"symbol"`
	Ctm    int64   `json:"ctm"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Vol    float64 `json:"vol"`
}
