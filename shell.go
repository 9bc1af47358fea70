package tellergo

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Shell is the interactive text-menu teller. It drives a Service from lines
// read on in and writes prompts and results to out.
type Shell struct {
	svc Service
	in  *bufio.Scanner
	out io.Writer
	log *zerolog.Logger
}

// errQuit signals end of input.
var errQuit = errors.New("quit")

func NewShell(svc Service, in io.Reader, out io.Writer, log *zerolog.Logger) *Shell {
	return &Shell{
		svc: svc,
		in:  bufio.NewScanner(in),
		out: out,
		log: log,
	}
}

func (s *Shell) printf(format string, args ...any) {
	fmt.Fprintf(s.out, format, args...)
}

func (s *Shell) println(args ...any) {
	fmt.Fprintln(s.out, args...)
}

func (s *Shell) readLine(prompt string) (string, error) {
	s.printf("%s", prompt)
	if !s.in.Scan() {
		if err := s.in.Err(); err != nil {
			return "", err
		}
		return "", errQuit
	}
	return strings.TrimSpace(s.in.Text()), nil
}

func (s *Shell) readInt(prompt string) (int, error) {
	for {
		line, err := s.readLine(prompt)
		if err != nil {
			return 0, err
		}
		n, err := strconv.Atoi(line)
		if err == nil {
			return n, nil
		}
		s.println("Please enter a valid number.")
	}
}

func (s *Shell) readAmount(prompt string) (decimal.Decimal, error) {
	for {
		line, err := s.readLine(prompt)
		if err != nil {
			return decimal.Zero, err
		}
		d, err := decimal.NewFromString(strings.TrimPrefix(line, "$"))
		if err == nil {
			return d, nil
		}
		s.println("Please enter a valid number.")
	}
}

// Run serves the main menu until the user exits or input ends.
func (s *Shell) Run() error {
	s.println("\n=== BANKING APPLICATION ===")
	for {
		s.println("\n1. Login to existing account")
		s.println("2. Create new account")
		s.println("3. Exit")
		choice, err := s.readInt("Select option: ")
		if err != nil {
			return s.finish(err)
		}

		switch choice {
		case 1:
			number, err := s.login()
			if err == nil && number != "" {
				err = s.bankingMenu(number)
			}
			if err != nil {
				return s.finish(err)
			}
		case 2:
			if err = s.createAccount(); err != nil {
				return s.finish(err)
			}
		case 3:
			s.println("Exiting application. Goodbye!")
			return nil
		default:
			s.println("Invalid option. Please try again.")
		}
	}
}

func (s *Shell) finish(err error) error {
	if errors.Is(err, errQuit) {
		return nil
	}
	return err
}

func (s *Shell) report(err error) {
	var (
		nf ErrNotFound
		br ErrBadRequest
		wp ErrWrongPIN
	)
	switch {
	case errors.As(err, &wp):
		s.println(wp.Error() + ".")
	case errors.As(err, &nf):
		s.println("Account not found.")
	case errors.As(err, &br):
		for field, msg := range br.Fields {
			s.printf("Invalid %s: %s.\n", field, msg)
		}
	case errors.Is(err, ErrAccountLocked):
		s.println("Account is locked. Please contact support.")
	case errors.Is(err, ErrInsufficientFunds):
		s.println("Insufficient balance for this operation.")
	case errors.Is(err, ErrInvalidAmount):
		s.println("Amount must be greater than zero.")
	case errors.Is(err, ErrSelfTransfer):
		s.println("Cannot transfer to your own account.")
	case errors.Is(err, ErrAuthFailed):
		s.println("Authentication failed.")
	default:
		s.log.Err(err).Msg("unexpected teller error")
		s.println("Something went wrong. Please try again.")
	}
}

func (s *Shell) createAccount() error {
	s.println("\n=== CREATE NEW ACCOUNT ===")
	name, err := s.readLine("Enter your full name: ")
	if err != nil {
		return err
	}

	var typ AccountType
	for {
		line, err := s.readLine("Choose account type (Savings/Checking): ")
		if err != nil {
			return err
		}
		if typ, err = ParseAccountType(line); err == nil {
			break
		}
		s.println("Invalid account type. Please choose either Savings or Checking.")
	}

	var pin int
	for {
		if pin, err = s.readInt("Set a 4-digit PIN: "); err != nil {
			return err
		}
		if pin >= MinPIN && pin <= MaxPIN {
			break
		}
		s.println("PIN must be a 4-digit number.")
	}

	var deposit decimal.Decimal
	for {
		if deposit, err = s.readAmount("Enter initial deposit amount: "); err != nil {
			return err
		}
		if !deposit.IsNegative() {
			break
		}
		s.println("Initial deposit cannot be negative.")
	}

	info, err := s.svc.CreateAccount(CreateAccountReq{
		Holder:         name,
		Type:           string(typ),
		PIN:            pin,
		InitialDeposit: deposit,
	})
	if err != nil {
		s.report(err)
		return nil
	}
	s.println("\nAccount created successfully!")
	s.println("Your account number is: " + info.Number)
	s.println("Please remember this number for future logins.")
	return nil
}

// login returns the authenticated account number, or "" when login failed.
func (s *Shell) login() (string, error) {
	s.println("\n=== LOGIN ===")
	number, err := s.readLine("Enter your account number: ")
	if err != nil {
		return "", err
	}
	pin, err := s.readInt("Enter your 4-digit PIN: ")
	if err != nil {
		return "", err
	}

	info, err := s.svc.Login(LoginReq{Number: number, PIN: pin})
	if err == nil {
		return info.Number, nil
	}
	s.report(err)
	if !errors.Is(err, ErrAccountLocked) {
		return "", nil
	}

	admin, err := s.readInt("Account locked. Enter admin PIN to unlock: ")
	if err != nil {
		return "", err
	}
	if err = s.svc.Unlock(AdminReq{Number: number, AdminPIN: admin}); err != nil {
		s.println("Invalid admin PIN.")
		return "", nil
	}
	s.println("Account unlocked successfully.")
	if pin, err = s.readInt("Enter your 4-digit PIN again: "); err != nil {
		return "", err
	}
	if info, err = s.svc.Login(LoginReq{Number: number, PIN: pin}); err != nil {
		s.report(err)
		return "", nil
	}
	return info.Number, nil
}

func (s *Shell) bankingMenu(number string) error {
	for {
		info, err := s.svc.Account(number)
		if err != nil {
			s.report(err)
			return nil
		}
		s.printf("\n--- %s's Banking Menu ---\n", info.Holder)
		s.println("1. Deposit money")
		s.println("2. Withdraw money")
		s.println("3. Transfer funds")
		s.println("4. Check balance")
		s.println("5. View transaction history")
		s.println("6. Calculate interest")
		s.println("7. Switch account")
		s.println("8. Account settings")
		s.println("9. Exit")
		choice, err := s.readInt("Enter your choice: ")
		if err != nil {
			return err
		}

		switch choice {
		case 1:
			amount, err := s.readAmount("Enter amount to deposit: ")
			if err != nil {
				return err
			}
			if _, err = s.svc.Deposit(ChargeReq{Number: number, Amount: amount}); err != nil {
				s.report(err)
				continue
			}
			s.printf("Successfully deposited: %s\n", usd(amount))
		case 2:
			amount, err := s.readAmount("Enter amount to withdraw: ")
			if err != nil {
				return err
			}
			if _, err = s.svc.Withdraw(ChargeReq{Number: number, Amount: amount}); err != nil {
				s.report(err)
				continue
			}
			s.printf("Successfully withdrew: %s\n", usd(amount))
		case 3:
			if err = s.transfer(number); err != nil {
				return err
			}
		case 4:
			s.printf("Current balance: %s\n", usd(info.Balance))
		case 5:
			if err = s.history(number); err != nil {
				return err
			}
		case 6:
			days, err := s.readInt("Enter number of days for interest calculation: ")
			if err != nil {
				return err
			}
			interest, err := s.svc.Interest(InterestReq{Number: number, Days: days})
			if err != nil {
				s.report(err)
				continue
			}
			s.printf("Estimated interest for %d days: %s\n", days, usd(*interest))
		case 7:
			s.println("Switching accounts...")
			return nil
		case 8:
			if err = s.settings(number); err != nil {
				return err
			}
		case 9:
			s.println("Thank you for banking with us!")
			return nil
		default:
			s.println("Invalid choice. Please try again.")
		}
	}
}

func (s *Shell) transfer(number string) error {
	to, err := s.readLine("Enter recipient account number: ")
	if err != nil {
		return err
	}
	if to == number {
		s.report(ErrSelfTransfer)
		return nil
	}
	recipient, err := s.svc.Account(to)
	if err != nil {
		s.println("Recipient account not found.")
		return nil
	}
	amount, err := s.readAmount(fmt.Sprintf("Enter amount to transfer to %s: ", recipient.Holder))
	if err != nil {
		return err
	}
	if _, err = s.svc.Transfer(TransferReq{From: number, To: to, Amount: amount}); err != nil {
		s.report(err)
		return nil
	}
	s.printf("Transferred %s to %s\n", usd(amount), recipient.Holder)
	return nil
}

func (s *Shell) history(number string) error {
	txns, err := s.svc.History(number)
	if err != nil {
		s.report(err)
		return nil
	}
	s.println("\n--- Transaction History ---")
	if len(txns) == 0 {
		s.println("No transactions yet.")
		return nil
	}
	for _, t := range txns {
		s.println(t.String())
	}
	return nil
}

func (s *Shell) settings(number string) error {
	for {
		s.println("\n=== ACCOUNT SETTINGS ===")
		s.println("1. Change PIN")
		s.println("2. View account details")
		s.println("3. Change interest rate (Admin only)")
		s.println("4. Back to main menu")
		choice, err := s.readInt("Select option: ")
		if err != nil {
			return err
		}

		switch choice {
		case 1:
			oldPIN, err := s.readInt("Enter current PIN: ")
			if err != nil {
				return err
			}
			newPIN, err := s.readInt("Enter new PIN: ")
			if err != nil {
				return err
			}
			if err = s.svc.ChangePIN(ChangePINReq{Number: number, Old: oldPIN, New: newPIN}); err != nil {
				s.report(err)
				continue
			}
			s.println("PIN changed successfully.")
		case 2:
			info, err := s.svc.Account(number)
			if err != nil {
				s.report(err)
				continue
			}
			s.println("Account Holder: " + info.Holder)
			s.println("Account Number: " + info.Number)
			s.println("Account Type: " + string(info.Type))
			s.printf("Interest Rate: %s%%\n", info.InterestRate.StringFixed(2))
			s.printf("Current balance: %s\n", usd(info.Balance))
		case 3:
			admin, err := s.readInt("Enter admin PIN: ")
			if err != nil {
				return err
			}
			rate, err := s.readAmount("Enter new interest rate: ")
			if err != nil {
				return err
			}
			if err = s.svc.SetInterestRate(RateReq{Number: number, Rate: rate, AdminPIN: admin}); err != nil {
				s.report(err)
				continue
			}
			s.printf("Interest rate changed to %s%%\n", rate.String())
		case 4:
			return nil
		default:
			s.println("Invalid option.")
		}
	}
}
