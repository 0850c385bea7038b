package email

import (
	"fmt"
	"html"
	"strings"

	"lendery/internal/models"
)

const pageStyle = `
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Oxygen, Ubuntu, Cantarell, sans-serif;
            line-height: 1.6;
            color: #333;
            max-width: 600px;
            margin: 0 auto;
            padding: 20px;
            background-color: #f8f9fa;
        }
        .container {
            background-color: white;
            padding: 40px;
            border-radius: 12px;
            box-shadow: 0 2px 10px rgba(0, 0, 0, 0.1);
        }
        .header {
            text-align: center;
            margin-bottom: 30px;
        }
        .logo {
            font-size: 28px;
            font-weight: bold;
            color: #1f5f8b;
            margin-bottom: 10px;
        }
        .headline {
            font-size: 22px;
            color: #1f5f8b;
            margin-bottom: 20px;
        }
        .content {
            font-size: 16px;
            margin-bottom: 30px;
        }
        .code {
            font-family: 'SFMono-Regular', Consolas, monospace;
            font-size: 32px;
            letter-spacing: 8px;
            text-align: center;
            background-color: #eef4f8;
            padding: 16px;
            border-radius: 8px;
        }
        .footer {
            margin-top: 40px;
            padding-top: 20px;
            border-top: 1px solid #e9ecef;
            font-size: 14px;
            color: #6c757d;
            text-align: center;
        }`

// page wraps already-escaped body HTML in the shared layout.
func page(title, headline, body string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>%s</title>
    <style>%s
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <div class="logo">Lendery</div>
            <div class="headline">%s</div>
        </div>
        <div class="content">
%s
        </div>
        <div class="footer">
            <p>Lendery, the neighbourhood object library.</p>
        </div>
    </div>
</body>
</html>`, html.EscapeString(title), pageStyle, html.EscapeString(headline), body)
}

func itemName(rental *models.Rental) string {
	if rental.Item != nil && rental.Item.Name != "" {
		return rental.Item.Name
	}
	return fmt.Sprintf("item #%d", rental.ItemID)
}

func welcomeHTML(user *models.User) string {
	body := fmt.Sprintf(`            <p>Thanks for joining Lendery! Borrow what you need from the library and pay with tokens.</p>
            <p>Your referral code is <strong>%s</strong>. Friends who sign up with it get a bonus, and so do you.</p>`,
		html.EscapeString(user.ReferralCode))
	return page("Welcome to Lendery", "Welcome "+user.Name+"!", body)
}

func welcomeText(user *models.User) string {
	return fmt.Sprintf(`Welcome %s!

Thanks for joining Lendery! Borrow what you need from the library and pay with tokens.

Your referral code is %s. Friends who sign up with it get a bonus, and so do you.

The Lendery team`, user.Name, user.ReferralCode)
}

func adminNotificationHTML(admin *models.User, newUser *models.User) string {
	body := fmt.Sprintf(`            <p>Hi %s,</p>
            <p>A new member just registered:</p>
            <ul>
                <li><strong>Name:</strong> %s</li>
                <li><strong>Email:</strong> %s</li>
                <li><strong>Registered:</strong> %s</li>
            </ul>`,
		html.EscapeString(admin.Name),
		html.EscapeString(newUser.Name),
		html.EscapeString(newUser.Email),
		newUser.CreatedAt.Format("January 2, 2006 at 3:04 PM MST"))
	return page("New member", "New member registered", body)
}

func adminNotificationText(admin *models.User, newUser *models.User) string {
	return fmt.Sprintf(`Hi %s,

A new member just registered:

Name: %s
Email: %s
Registered: %s`, admin.Name, newUser.Name, newUser.Email, newUser.CreatedAt.Format("January 2, 2006 at 3:04 PM MST"))
}

func rentalDecisionHTML(user *models.User, rental *models.Rental) string {
	var b strings.Builder
	fmt.Fprintf(&b, "            <p>Hi %s,</p>\n", html.EscapeString(user.Name))
	if rental.Status == models.RentalRejected {
		fmt.Fprintf(&b, "            <p>Your request for <strong>%s</strong> was not approved.</p>\n", html.EscapeString(itemName(rental)))
		fmt.Fprintf(&b, "            <p>%d tokens have been returned to your balance.</p>", rental.TotalTokens)
		return page("Rental not approved", "Rental not approved", b.String())
	}
	fmt.Fprintf(&b, "            <p>Your rental of <strong>%s</strong> was approved.</p>\n", html.EscapeString(itemName(rental)))
	fmt.Fprintf(&b, "            <p>Please return it by <strong>%s</strong> to earn the on-time bonus.</p>", rental.EndDate.Format("Monday, January 2"))
	return page("Rental approved", "Rental approved", b.String())
}

func rentalDecisionText(user *models.User, rental *models.Rental) string {
	if rental.Status == models.RentalRejected {
		return fmt.Sprintf("Hi %s,\n\nYour request for %s was not approved.\n%d tokens have been returned to your balance.",
			user.Name, itemName(rental), rental.TotalTokens)
	}
	return fmt.Sprintf("Hi %s,\n\nYour rental of %s was approved.\nPlease return it by %s to earn the on-time bonus.",
		user.Name, itemName(rental), rental.EndDate.Format("Monday, January 2"))
}

func returnCodeHTML(admin *models.User, rental *models.Rental) string {
	body := fmt.Sprintf(`            <p>Hi %s,</p>
            <p>%s started returning <strong>%s</strong>. Read this code to them when you receive the item:</p>
            <div class="code">%s</div>`,
		html.EscapeString(admin.Name),
		html.EscapeString(rental.UserName),
		html.EscapeString(itemName(rental)),
		html.EscapeString(rental.ReturnCode))
	return page("Return code", fmt.Sprintf("Return of rental #%d", rental.ID), body)
}

func returnCodeText(admin *models.User, rental *models.Rental) string {
	return fmt.Sprintf("Hi %s,\n\n%s started returning %s. Read this code to them when you receive the item:\n\n    %s",
		admin.Name, rental.UserName, itemName(rental), rental.ReturnCode)
}

func purchaseDecisionHTML(user *models.User, txn *models.Transaction) string {
	if txn.Status == models.TransactionCancelled {
		body := fmt.Sprintf(`            <p>Hi %s,</p>
            <p>We could not confirm your payment, so the purchase was cancelled and no tokens were added.</p>
            <p>Reply to this email or open a support ticket if you think this is a mistake.</p>`,
			html.EscapeString(user.Name))
		return page("Purchase not approved", "Purchase not approved", body)
	}
	body := fmt.Sprintf(`            <p>Hi %s,</p>
            <p>Your payment was confirmed and <strong>%d tokens</strong> were added to your balance.</p>`,
		html.EscapeString(user.Name), txn.TokensGranted)
	return page("Purchase approved", "Tokens added", body)
}

func purchaseDecisionText(user *models.User, txn *models.Transaction) string {
	if txn.Status == models.TransactionCancelled {
		return fmt.Sprintf("Hi %s,\n\nWe could not confirm your payment, so the purchase was cancelled and no tokens were added.\nReply to this email or open a support ticket if you think this is a mistake.", user.Name)
	}
	return fmt.Sprintf("Hi %s,\n\nYour payment was confirmed and %d tokens were added to your balance.", user.Name, txn.TokensGranted)
}
