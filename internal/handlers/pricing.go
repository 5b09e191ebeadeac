package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/mailward/web/internal/api"
)

// PricingPage renders the public plan catalog, with the signed-in user's own
// plan when available.
func (h *Handlers) PricingPage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	plans, err := h.client.GetPlans(ctx)
	if err != nil {
		h.fail(w, r, err, "/")
		return
	}

	data := map[string]any{"Plans": plans}

	if token := h.token(r); token != "" {
		myPlan, err := h.client.GetMyPlan(ctx, token)
		if err == nil {
			data["MyPlan"] = myPlan
		} else if apiErr := api.AsAPIError(err); apiErr != nil && apiErr.IsUnauthorized() {
			// Stale token; the catalog still renders for an anonymous view.
			h.tokens.Clear(w, r)
		}
	}

	h.render(w, r, "pricing", data)
}

// PricingOrder starts a payment for a plan, validating a coupon first when
// one was entered. The order is opaque to the console; its id is surfaced
// for the payment provider's checkout.
func (h *Handlers) PricingOrder(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.flash(w, "Invalid form data")
		http.Redirect(w, r, "/pricing", http.StatusSeeOther)
		return
	}

	planID := r.FormValue("planId")
	coupon := strings.TrimSpace(r.FormValue("couponCode"))
	token := h.token(r)
	ctx := r.Context()

	if coupon != "" {
		check, err := h.client.ValidateCoupon(ctx, token, api.ValidateCouponRequest{Code: coupon, PlanID: planID})
		if err != nil {
			h.fail(w, r, err, "/pricing")
			return
		}
		if !check.Valid {
			msg := check.Message
			if msg == "" {
				msg = "Invalid coupon code"
			}
			h.flash(w, msg)
			http.Redirect(w, r, "/pricing", http.StatusSeeOther)
			return
		}
	}

	order, err := h.client.CreateOrder(ctx, token, api.CreateOrderRequest{PlanID: planID, CouponCode: coupon})
	if err != nil {
		h.fail(w, r, err, "/pricing")
		return
	}

	h.flash(w, fmt.Sprintf("Order %s created for %s %.2f, complete the payment to activate", order.OrderID, order.Currency, order.Amount))
	http.Redirect(w, r, "/pricing", http.StatusSeeOther)
}

// PricingVerify confirms a completed payment with the backend.
func (h *Handlers) PricingVerify(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.flash(w, "Invalid form data")
		http.Redirect(w, r, "/pricing", http.StatusSeeOther)
		return
	}

	resp, err := h.client.VerifyPayment(r.Context(), h.token(r), api.VerifyPaymentRequest{
		OrderID:   r.FormValue("orderId"),
		PaymentID: r.FormValue("paymentId"),
		Signature: r.FormValue("signature"),
		PlanID:    r.FormValue("planId"),
	})
	if err != nil {
		h.fail(w, r, err, "/pricing")
		return
	}

	if resp.Success {
		h.flash(w, "Plan activated")
	} else {
		msg := resp.Message
		if msg == "" {
			msg = "Payment verification failed"
		}
		h.flash(w, msg)
	}
	http.Redirect(w, r, "/pricing", http.StatusSeeOther)
}

// PricingActivateFree switches the user to the free plan.
func (h *Handlers) PricingActivateFree(w http.ResponseWriter, r *http.Request) {
	if err := h.client.ActivateFree(r.Context(), h.token(r)); err != nil {
		h.fail(w, r, err, "/pricing")
		return
	}

	h.flash(w, "Free plan activated")
	http.Redirect(w, r, "/pricing", http.StatusSeeOther)
}
