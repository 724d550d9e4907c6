package dialog

import (
	"fmt"

	"github.com/medconn/medconnect/internal/telegram"
)

const (
	textFallback = "🤖 No estoy seguro de entenderte. Escribe 'menu' para ver las opciones disponibles."

	textApology = "❌ Ocurrió un error procesando tu mensaje. Intenta más tarde."

	textStoreRetryLater = "❌ No pude guardar tus datos en este momento. Intenta de nuevo más tarde."

	textCancelled = "✅ Operación cancelada. Escribe 'menu' para ver las opciones."

	textFarewell = "👋 ¡Hasta pronto! Cuida tu salud. Escríbeme cuando me necesites."

	textThanks = "¡De nada! 😊 Estoy aquí para ayudarte con tu salud."

	textConsultaFormat = `🩺 <b>Registrar consulta realizada</b>

Envía los datos en una sola línea, separados por comas:

<code>fecha, especialidad, médico, centro, diagnóstico, tratamiento</code>

Ejemplo:
<code>15/03/2026, Cardiología, Dr. Soto, Hospital Central, control sano, ninguno</code>

La fecha puede ser "hoy". Escribe 'cancelar' para salir.`

	textConsultaFuturaFormat = `📅 <b>Agendar consulta futura</b>

Envía los datos en una sola línea, separados por comas:

<code>fecha, hora, especialidad, médico, centro, motivo</code>

Ejemplo:
<code>20/04/2026, 10:30, Dermatología, Dra. Ruiz, Clínica Sur, control de lunares</code>

Escribe 'cancelar' para salir.`

	textMedicamentoFormat = `💊 <b>Registrar medicamento</b>

Envía los datos en una sola línea, separados por comas:

<code>nombre, dosis, frecuencia, médico que lo recetó, fecha de inicio</code>

Ejemplo:
<code>Losartán, 50mg, cada 12 horas, Dr. Soto, hoy</code>

Escribe 'cancelar' para salir.`

	textExamenFormat = `🩻 <b>Registrar examen</b>

Envía los datos en una sola línea, separados por comas:

<code>tipo de examen, fecha, laboratorio, resultados, médico</code>

Ejemplo:
<code>Eco abdominal, 28/05/2025, Lab hospital, pólipos vesiculares, Dr. Pinto</code>

Escribe 'cancelar' para salir.`

	textExamAttachments = `📎 <b>Datos del examen recibidos.</b>

Ahora puedes adjuntar los documentos del examen (PDF o fotos).

• Envía uno o más archivos
• Escribe <b>listo</b> para guardar
• Escribe <b>pendiente</b> si aún no te realizas el examen`

	textFileOutsideFlow = "📎 Recibí tu archivo, pero no hay un examen en curso. Escribe 'examen' para registrar uno y adjuntarlo, o abre tu historial y elige '➕ Agregar archivos' en un examen ya guardado."

	textExamAddFiles = `📎 <b>Agregar archivos al examen</b>

Envía los documentos (PDF o fotos) y escribe <b>listo</b> cuando termines, o 'cancelar' para salir.`

	textFamilyStepRelationship = `📝 <b>Paso 2:</b> ¿Qué parentesco tiene contigo?
(Ejemplo: hijo, hija, esposo, esposa, madre, padre)`

	textFamilyStepPhone = `📝 <b>Paso 3:</b> Número de teléfono del familiar
(Ejemplo: +56912345678)`

	textFamilyStepTelegram = `📝 <b>Paso 5:</b> ID de Telegram del familiar, para avisarle de tu actividad.

Escribe <b>saltar</b> si no lo tienes.`

	textFamilyUseButtons = "🔑 Elige los permisos con los botones de arriba, o escribe 'cancelar' para salir."

	textOnboardingWelcome = `👋 <b>¡Bienvenido a MedConnect!</b>

Soy tu asistente médico personal. Antes de empezar necesito algunos datos.

📝 <b>Paso 1:</b> ¿Cuál es tu nombre completo?`

	textVincularUsage = `🔗 <b>Vincular con la plataforma web</b>

Si ya estás registrado en la plataforma, escribe:
<code>/vincular tu-email@ejemplo.com</code>`

	textVincularEmailTaken = `❌ Ese correo ya está vinculado a otra cuenta de Telegram.

Si crees que es un error, contacta soporte desde la plataforma web.`

	textVincularChatTaken = `❌ Tu cuenta de Telegram ya está vinculada a otro usuario registrado.

Desvincúlala primero desde la plataforma web.`

	textVincularEmailUnknown = `❌ No encontré ese correo en la plataforma.

1. Verifica que esté bien escrito
2. Regístrate primero en la web si aún no lo haces
3. Intenta de nuevo: <code>/vincular tu-email@ejemplo.com</code>`
)

func mainMenuText(name string) string {
	greeting := "¡Hola"
	if name != "" {
		greeting += ", " + name
	}
	return greeting + `! 🤖

Soy tu asistente de <b>MedConnect</b>. Puedo ayudarte a:

🩺 Registrar consultas médicas
💊 Registrar medicamentos
🩻 Registrar exámenes y sus documentos
📊 Ver tu historial
👨‍👩‍👧‍👦 Autorizar familiares

Elige una opción o escribe palabras como "consulta", "medicamento" o "examen".`
}

func mainMenuButtons() [][]telegram.InlineButton {
	return [][]telegram.InlineButton{
		{{Text: "🩺 Consulta realizada", CallbackData: "reg_consulta"}},
		{{Text: "📅 Consulta futura", CallbackData: "reg_consulta_futura"}},
		{{Text: "💊 Medicamento", CallbackData: "reg_medicamento"}},
		{{Text: "🩻 Examen", CallbackData: "reg_examen"}},
		{{Text: "📊 Ver historial", CallbackData: "ver_historial"}},
		{{Text: "👨‍👩‍👧‍👦 Familiares", CallbackData: "ver_familiares"}},
	}
}

func permissionButtons() [][]telegram.InlineButton {
	return [][]telegram.InlineButton{
		{{Text: "👀 Solo Ver", CallbackData: "perm_lectura"}},
		{{Text: "✏️ Ver y Editar", CallbackData: "perm_escritura"}},
		{{Text: "👑 Control Total", CallbackData: "perm_admin"}},
	}
}

func confirmConsulta(fields map[string]string) string {
	return fmt.Sprintf(`✅ <b>Consulta registrada</b>

📆 Fecha: %s
🏥 Especialidad: %s
👨‍⚕️ Médico: %s
📍 Centro: %s
🔍 Diagnóstico: %s
💊 Tratamiento: %s`,
		fields["fecha"], fields["especialidad"], fields["medico"],
		fields["centro"], fields["diagnostico"], fields["tratamiento"])
}

func confirmConsultaFutura(fields map[string]string) string {
	return fmt.Sprintf(`✅ <b>Consulta agendada</b>

📆 Fecha: %s
🕑 Hora: %s
🏥 Especialidad: %s
👨‍⚕️ Médico: %s
📍 Centro: %s
📝 Motivo: %s

🔔 Te lo recordaré cuando se acerque la fecha.`,
		fields["fecha"], fields["hora"], fields["especialidad"],
		fields["medico"], fields["centro"], fields["motivo"])
}

func confirmMedicamento(fields map[string]string) string {
	return fmt.Sprintf(`✅ <b>Medicamento registrado</b>

💊 Nombre: %s
⚖️ Dosis: %s
🕑 Frecuencia: %s
👨‍⚕️ Recetado por: %s
📆 Inicio: %s`,
		fields["nombre"], fields["dosis"], fields["frecuencia"],
		fields["medico"], fields["fecha_inicio"])
}

func confirmExamen(fields map[string]string, files int) string {
	attached := "sin archivos adjuntos"
	if files == 1 {
		attached = "1 archivo adjunto"
	} else if files > 1 {
		attached = fmt.Sprintf("%d archivos adjuntos", files)
	}
	return fmt.Sprintf(`✅ <b>Examen registrado</b>

🩻 Tipo: %s
📆 Fecha: %s
🏥 Laboratorio: %s
🔍 Resultados: %s
👨‍⚕️ Médico: %s
📎 %s`,
		fields["tipo"], fields["fecha"], fields["laboratorio"],
		fields["resultados"], fields["medico"], attached)
}
