package crawler

import (
	"strconv"
	"strings"

	"sjsage522/stockscraper/helpers"
	"sjsage522/stockscraper/internal/browser"
	"sjsage522/stockscraper/internal/model"

	"github.com/PuerkitoBio/goquery"
)

type priceColumns struct {
	date, open, high, low, close, volume int
}

// positional layout of the Yahoo history table: Date, Open, High, Low,
// Close, Adj Close, Volume
var defaultPriceColumns = priceColumns{date: 0, open: 1, high: 2, low: 3, close: 4, volume: 6}

// ParsePriceTable reads daily bars from the history table. Rows that are not
// full price rows (dividends, splits, footers) are counted as skipped.
func ParsePriceTable(page *browser.Page, tableSelector, ticker string) (bars []model.PriceBar, skipped int) {
	table := page.Doc.Find(tableSelector).First()
	if table.Length() == 0 {
		return nil, 0
	}

	cols := headerColumns(table)
	ticker = strings.ToUpper(ticker)

	table.Find("tbody tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() <= cols.max() {
			skipped++
			return
		}
		cell := func(i int) string {
			return helpers.NormalizeSpace(cells.Eq(i).Text())
		}

		bar := model.PriceBar{
			Ticker: ticker,
			Date:   parseDate(cell(cols.date)),
			Open:   parseFloat(cell(cols.open)),
			High:   parseFloat(cell(cols.high)),
			Low:    parseFloat(cell(cols.low)),
			Close:  parseFloat(cell(cols.close)),
			Volume: parseInt(cell(cols.volume)),
		}
		if !bar.Complete() {
			skipped++
			return
		}
		bars = append(bars, bar)
	})

	return bars, skipped
}

// headerColumns maps column names to indexes, falling back to the default
// layout for any column the header does not name
func headerColumns(table *goquery.Selection) priceColumns {
	cols := defaultPriceColumns
	found := priceColumns{date: -1, open: -1, high: -1, low: -1, close: -1, volume: -1}

	table.Find("thead th").Each(func(i int, th *goquery.Selection) {
		name := strings.ToLower(helpers.NormalizeSpace(th.Text()))
		switch {
		case strings.HasPrefix(name, "date"):
			found.date = i
		case strings.HasPrefix(name, "open"):
			found.open = i
		case strings.HasPrefix(name, "high"):
			found.high = i
		case strings.HasPrefix(name, "low"):
			found.low = i
		case strings.HasPrefix(name, "adj"):
		case strings.HasPrefix(name, "close"):
			found.close = i
		case strings.HasPrefix(name, "volume"):
			found.volume = i
		}
	})

	if found.date >= 0 {
		cols.date = found.date
	}
	if found.open >= 0 {
		cols.open = found.open
	}
	if found.high >= 0 {
		cols.high = found.high
	}
	if found.low >= 0 {
		cols.low = found.low
	}
	if found.close >= 0 {
		cols.close = found.close
	}
	if found.volume >= 0 {
		cols.volume = found.volume
	}
	return cols
}

func (c priceColumns) max() int {
	return max(c.date, c.open, c.high, c.low, c.close, c.volume)
}

func parseDate(s string) string {
	t, ok := model.ParseTimestamp(s)
	if !ok {
		return ""
	}
	return t.Format("2006-01-02")
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil {
		return 0
	}
	return v
}

func parseInt(s string) int64 {
	v, err := strconv.ParseInt(strings.ReplaceAll(s, ",", ""), 10, 64)
	if err != nil {
		return 0
	}
	return v
}
