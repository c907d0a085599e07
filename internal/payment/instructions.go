package payment

import "strings"

// Xendit channel codes accepted in payment data under "channel_code" (or as
// the payment token). Authorize refuses any other channel.
const (
	ChannelBCAVA     = "BCA_VIRTUAL_ACCOUNT"
	ChannelBNIVA     = "BNI_VIRTUAL_ACCOUNT"
	ChannelMandiriVA = "MANDIRI_VIRTUAL_ACCOUNT"
	ChannelQRIS      = "QRIS"
	ChannelDANA      = "DANA"
)

var channelInstructions = map[string][]string{
	ChannelBCAVA: {
		"Buka aplikasi BCA Mobile, KlikBCA, atau ATM BCA",
		"Pilih menu Transfer → Virtual Account",
		"Masukkan nomor Virtual Account {{payment_code}}",
		"Pastikan nominal {{amount}} sudah sesuai lalu selesaikan pembayaran",
	},
	ChannelBNIVA: {
		"Buka aplikasi BNI Mobile Banking atau ATM BNI",
		"Pilih menu Virtual Account Billing",
		"Masukkan nomor Virtual Account {{payment_code}}",
		"Konfirmasi pembayaran sebesar {{amount}}",
	},
	ChannelMandiriVA: {
		"Buka aplikasi Livin’ by Mandiri atau ATM Mandiri",
		"Pilih menu Bayar → Multi Payment",
		"Masukkan nomor Virtual Account {{payment_code}}",
		"Konfirmasi pembayaran sebesar {{amount}}",
	},
	ChannelQRIS: {
		"Buka aplikasi e-wallet atau mobile banking yang mendukung QRIS",
		"Pindai kode QR yang ditampilkan",
		"Konfirmasi pembayaran sebesar {{amount}}",
	},
	ChannelDANA: {
		"Buka aplikasi DANA",
		"Konfirmasi pembayaran {{amount}} dan masukkan PIN",
	},
}

func supportedChannel(channel string) bool {
	_, ok := channelInstructions[channel]
	return ok
}

func GetInstructions(channel string) []string {
	if steps, ok := channelInstructions[channel]; ok {
		return steps
	}
	return []string{
		"Ikuti instruksi pembayaran yang tersedia pada halaman ini",
	}
}

type InstructionVars map[string]string

// InjectVariables replaces {{key}} placeholders; unknown placeholders are left as is.
func InjectVariables(steps []string, vars InstructionVars) []string {
	result := make([]string, 0, len(steps))
	for _, step := range steps {
		for key, value := range vars {
			step = strings.ReplaceAll(step, "{{"+key+"}}", value)
		}
		result = append(result, step)
	}
	return result
}
