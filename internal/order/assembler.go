package order

import (
	"context"
	"time"

	"warimas-checkout/internal/address"
	"warimas-checkout/internal/checkout"
	"warimas-checkout/internal/giftcard"
	"warimas-checkout/internal/inventory"
	"warimas-checkout/internal/logger"
	"warimas-checkout/internal/pricing"
	"warimas-checkout/internal/product"

	"go.uber.org/zap"
)

type Catalog interface {
	ProductTranslations(ctx context.Context, productIDs []int64, languageCode string) (product.Translations, error)
	VariantTranslations(ctx context.Context, variantIDs []int64, languageCode string) (product.Translations, error)
	OptionValues(ctx context.Context, ids []int64, channelSlug string) (map[int64]product.OptionValue, error)
}

type StockChecker interface {
	CheckStockBulk(ctx context.Context, reqs []inventory.Request, country, channel string) error
}

type AssembleInput struct {
	Checkout  *checkout.Checkout
	Lines     []checkout.Line
	Discounts []pricing.Discount
	Prices    *pricing.Result
	GiftCards []giftcard.GiftCard
	// Address is the tax address the prices were resolved with.
	Address   *address.Address
	UserID    *uint
	UserEmail string
}

// Assembler builds an order draft from checkout state. It writes nothing.
type Assembler struct {
	catalog Catalog
	stock   StockChecker
	oracle  pricing.Oracle
	now     func() time.Time
}

func NewAssembler(catalog Catalog, stock StockChecker, oracle pricing.Oracle) *Assembler {
	return &Assembler{catalog: catalog, stock: stock, oracle: oracle, now: time.Now}
}

func (a *Assembler) Assemble(ctx context.Context, in AssembleInput) (*Draft, error) {
	c := in.Checkout
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "assembler"),
		zap.String("method", "Assemble"),
		zap.Int("lines", len(in.Lines)),
	)

	if len(in.Lines) == 0 {
		return nil, checkout.ErrEmptyCheckout
	}

	// 1. Gift cards
	if err := giftcard.ValidateActive(in.GiftCards, a.now()); err != nil {
		log.Info("gift card not usable")
		return nil, err
	}

	// 2. Translations
	productIDs, variantIDs, optionIDs := collectIDs(in.Lines)

	productNames, err := a.catalog.ProductTranslations(ctx, productIDs, c.LanguageCode)
	if err != nil {
		return nil, err
	}
	variantNames, err := a.catalog.VariantTranslations(ctx, variantIDs, c.LanguageCode)
	if err != nil {
		return nil, err
	}

	// 3. Stock, for the whole line set at once
	reqs := make([]inventory.Request, 0, len(in.Lines))
	for _, l := range in.Lines {
		reqs = append(reqs, inventory.Request{VariantID: l.Variant.ID, Quantity: l.Quantity})
	}
	if err := a.stock.CheckStockBulk(ctx, reqs, c.Country, c.ChannelSlug); err != nil {
		return nil, err
	}

	options := map[int64]product.OptionValue{}
	if len(optionIDs) > 0 {
		if options, err = a.catalog.OptionValues(ctx, optionIDs, c.ChannelSlug); err != nil {
			return nil, err
		}
	}

	// 4. Lines
	oin := pricing.OracleInput{Checkout: c, Lines: in.Lines, Address: in.Address, Discounts: in.Discounts}
	lines := make([]Line, 0, len(in.Lines))
	for _, cl := range in.Lines {
		line, err := a.line(ctx, oin, cl, options)
		if err != nil {
			log.Error("line pricing failed", zap.Int64("variant_id", cl.Variant.ID), zap.Error(err))
			return nil, err
		}
		line.TranslatedProductName = productNames.NameFor(cl.Variant.ProductID, cl.Variant.ProductName)
		line.TranslatedVariantName = variantNames.NameFor(cl.Variant.ID, cl.Variant.Name)
		lines = append(lines, line)
	}

	draft := &Draft{
		CheckoutToken:   c.Token,
		UserID:          in.UserID,
		UserEmail:       in.UserEmail,
		ChannelSlug:     c.ChannelSlug,
		Currency:        c.Currency,
		Country:         c.Country,
		LanguageCode:    c.LanguageCode,
		BillingAddress:  c.BillingAddress,
		ShippingAddress: c.ShippingAddress,
		VoucherCode:     c.VoucherCode,
		Discount:        c.Discount,
		CustomerNote:    c.Note,
		TrackingCode:    c.TrackingCode,
		RedirectURL:     c.RedirectURL,
		Metadata:        c.Metadata,
		PrivateMetadata: c.PrivateMetadata,
		Lines:           lines,
	}
	if c.DiscountName != nil {
		draft.DiscountName = *c.DiscountName
		if c.TranslatedDiscountName != nil && *c.TranslatedDiscountName != *c.DiscountName {
			draft.TranslatedDiscountName = *c.TranslatedDiscountName
		}
	}
	if m := c.ShippingMethod; m != nil {
		id := m.ID
		draft.ShippingMethodID = &id
		draft.ShippingMethodName = m.Name
	}
	if p := in.Prices; p != nil {
		draft.Total = p.Total
		draft.Undiscounted = p.Undiscounted
		draft.ShippingPrice = p.Shipping
		draft.ShippingTaxRate = p.ShippingTaxRate
		draft.DeliveryFee = p.DeliveryFee
		draft.TransactionCost = p.TransactionFee
		draft.TotalPriceLeft = p.TotalPriceLeft
	}

	log.Debug("order draft assembled", zap.String("total", draft.Total.Gross.String()))
	return draft, nil
}

func (a *Assembler) line(ctx context.Context, oin pricing.OracleInput, cl checkout.Line, options map[int64]product.OptionValue) (Line, error) {
	total, err := a.oracle.LineTotal(ctx, oin, cl)
	if err != nil {
		return Line{}, pricing.TaxError(err)
	}
	unit, err := a.oracle.LineUnitPrice(ctx, oin, cl, total)
	if err != nil {
		return Line{}, pricing.TaxError(err)
	}
	rate, err := a.oracle.LineTaxRate(ctx, oin, cl, unit)
	if err != nil {
		return Line{}, pricing.TaxError(err)
	}

	line := Line{
		VariantID:          cl.Variant.ID,
		ProductName:        cl.Variant.ProductName,
		VariantName:        cl.Variant.Name,
		SKU:                cl.Variant.SKU,
		IsShippingRequired: cl.Variant.IsShippingRequired,
		Quantity:           cl.Quantity,
		Currency:           oin.Checkout.Currency,
		UnitPrice:          unit,
		TotalPrice:         total,
		TaxRate:            rate,
	}

	for _, id := range cl.OptionValueIDs {
		ov, ok := options[id]
		if !ok {
			logger.FromCtx(ctx).Warn("option value not priced in channel",
				zap.Int64("option_value_id", id),
				zap.String("channel", oin.Checkout.ChannelSlug),
			)
			continue
		}
		line.Options = append(line.Options, OptionSnapshot{
			ID:       ov.ID,
			Name:     ov.Name,
			Type:     ov.Type,
			Price:    ov.Price,
			Currency: ov.Currency,
		})
	}
	return line, nil
}

func collectIDs(lines []checkout.Line) (productIDs, variantIDs, optionIDs []int64) {
	seenProduct := map[int64]bool{}
	seenOption := map[int64]bool{}
	for _, l := range lines {
		if !seenProduct[l.Variant.ProductID] {
			seenProduct[l.Variant.ProductID] = true
			productIDs = append(productIDs, l.Variant.ProductID)
		}
		variantIDs = append(variantIDs, l.Variant.ID)
		for _, id := range l.OptionValueIDs {
			if !seenOption[id] {
				seenOption[id] = true
				optionIDs = append(optionIDs, id)
			}
		}
	}
	return productIDs, variantIDs, optionIDs
}
